package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PANEHUB_LOG_LEVEL", "")
	t.Setenv("PANEHUB_TRACE_STREAM", "")
	t.Setenv("PANEHUB_LOCAL_HOST", "")
	t.Setenv("PANEHUB_DATA_DIR", "")
	t.Setenv("PANEHUB_TRANSPORT", "")

	cfg := LoadConfig()
	if cfg.ListenLogLevel != "info" {
		t.Fatalf("unexpected ListenLogLevel: %s", cfg.ListenLogLevel)
	}
	if cfg.TraceStream {
		t.Fatal("trace stream should default to disabled")
	}
	if cfg.TransportKind != "tmux" {
		t.Fatalf("transport should default to tmux, got %s", cfg.TransportKind)
	}
	if cfg.LocalPort != 4621 {
		t.Fatalf("unexpected local port: %d", cfg.LocalPort)
	}
	if cfg.LocalHost != "127.0.0.1" {
		t.Fatalf("unexpected local host: %s", cfg.LocalHost)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("unexpected default data dir: %s", cfg.DataDir)
	}
	if cfg.ThrottleCapacity != 3 {
		t.Fatalf("unexpected default throttle capacity: %d", cfg.ThrottleCapacity)
	}
	if cfg.ThrottleWindow != 10*time.Second {
		t.Fatalf("unexpected default throttle window: %s", cfg.ThrottleWindow)
	}
	if cfg.InjectLockTTL != 30*time.Second {
		t.Fatalf("unexpected default inject lock ttl: %s", cfg.InjectLockTTL)
	}
}

func TestLoadConfig_TraceStreamEnabled(t *testing.T) {
	t.Setenv("PANEHUB_TRACE_STREAM", "1")
	cfg := LoadConfig()
	if !cfg.TraceStream {
		t.Fatal("trace stream should be enabled when PANEHUB_TRACE_STREAM=1")
	}
}

func TestLoadConfig_TransportAndLocalAddr(t *testing.T) {
	t.Setenv("PANEHUB_TRANSPORT", "pty")
	t.Setenv("PANEHUB_LOCAL_PORT", "4700")
	t.Setenv("PANEHUB_LOCAL_HOST", "0.0.0.0")
	cfg := LoadConfig()
	if cfg.TransportKind != "pty" {
		t.Fatalf("unexpected transport: %s", cfg.TransportKind)
	}
	if cfg.LocalPort != 4700 {
		t.Fatalf("unexpected local port: %d", cfg.LocalPort)
	}
	if cfg.LocalHost != "0.0.0.0" {
		t.Fatalf("unexpected local host: %s", cfg.LocalHost)
	}
}

func TestLoadConfig_HistoryLines(t *testing.T) {
	t.Setenv("PANEHUB_HISTORY_LINES", "8000")
	cfg := LoadConfig()
	if cfg.HistoryLines != 8000 {
		t.Fatalf("unexpected history lines: %d", cfg.HistoryLines)
	}
}

func TestLoadConfig_ThrottleOverrides(t *testing.T) {
	t.Setenv("PANEHUB_THROTTLE_CAPACITY", "5")
	t.Setenv("PANEHUB_THROTTLE_WINDOW_SECONDS", "20")
	t.Setenv("PANEHUB_INJECT_LOCK_TTL_SECONDS", "45")
	cfg := LoadConfig()
	if cfg.ThrottleCapacity != 5 {
		t.Fatalf("unexpected throttle capacity: %d", cfg.ThrottleCapacity)
	}
	if cfg.ThrottleWindow != 20*time.Second {
		t.Fatalf("unexpected throttle window: %s", cfg.ThrottleWindow)
	}
	if cfg.InjectLockTTL != 45*time.Second {
		t.Fatalf("unexpected inject lock ttl: %s", cfg.InjectLockTTL)
	}
}

func TestLoadConfig_SettingsPathDerivesFromDataDir(t *testing.T) {
	t.Setenv("PANEHUB_DATA_DIR", "/tmp/panehub-data")
	t.Setenv("PANEHUB_SETTINGS_PATH", "")
	cfg := LoadConfig()
	if cfg.SettingsPath != "/tmp/panehub-data/settings.toml" {
		t.Fatalf("unexpected settings path: %s", cfg.SettingsPath)
	}
}

func TestGetConfig_UsesCacheWithinTTL(t *testing.T) {
	resetConfigCacheForTest()
	t.Setenv("PANEHUB_LOCAL_HOST", "127.0.0.1")
	_ = LoadConfig()

	t.Setenv("PANEHUB_LOCAL_HOST", "0.0.0.0")
	got := GetConfig()
	if got == nil {
		t.Fatal("GetConfig should not return nil")
	}
	if got.LocalHost != "127.0.0.1" {
		t.Fatalf("expected cached host 127.0.0.1, got %s", got.LocalHost)
	}
}

func TestGetConfig_RefreshesAfterTTL(t *testing.T) {
	resetConfigCacheForTest()

	oldNow := nowFunc
	oldTTL := cacheTTL
	defer func() {
		nowFunc = oldNow
		cacheTTL = oldTTL
		resetConfigCacheForTest()
	}()

	base := time.Date(2026, time.February, 19, 0, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return base }
	cacheTTL = 10 * time.Second

	t.Setenv("PANEHUB_LOCAL_HOST", "127.0.0.1")
	_ = LoadConfig()

	base = base.Add(11 * time.Second)
	t.Setenv("PANEHUB_LOCAL_HOST", "0.0.0.0")

	got := GetConfig()
	if got == nil {
		t.Fatal("GetConfig should not return nil")
	}
	if got.LocalHost != "0.0.0.0" {
		t.Fatalf("expected refreshed host 0.0.0.0, got %s", got.LocalHost)
	}
}

func resetConfigCacheForTest() {
	cacheMu.Lock()
	cachedCfg = Config{}
	cachedAt = time.Time{}
	cacheValid = false
	cacheMu.Unlock()
}
