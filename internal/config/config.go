package config

import (
	"os"
	"sync"
	"time"
)

// Config holds the coordinator daemon's runtime settings, loaded from
// environment variables with a short TTL cache so hot paths don't repeatedly
// touch the environment.
type Config struct {
	ListenLogLevel   string
	DataDir          string
	TransportKind    string // "tmux" or "pty"
	TmuxSocket       string
	TraceStream      bool
	HistoryLines     int
	LocalHost        string
	LocalPort        int
	ThrottleCapacity int
	ThrottleWindow   time.Duration
	InjectLockTTL    time.Duration
	SettingsPath     string
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	level := os.Getenv("PANEHUB_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	dataDir := os.Getenv("PANEHUB_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	transportKind := os.Getenv("PANEHUB_TRANSPORT")
	if transportKind == "" {
		transportKind = "tmux"
	}

	socket := os.Getenv("PANEHUB_TMUX_SOCKET")
	traceStream := os.Getenv("PANEHUB_TRACE_STREAM") == "1"
	historyLines := atoiOrDefault(os.Getenv("PANEHUB_HISTORY_LINES"), 2000)
	if historyLines < 1 {
		historyLines = 2000
	}

	localHost := os.Getenv("PANEHUB_LOCAL_HOST")
	if localHost == "" {
		localHost = "127.0.0.1"
	}
	localPort := 4621
	if p := os.Getenv("PANEHUB_LOCAL_PORT"); p != "" {
		if n := atoiOrDefault(p, 4621); n > 0 {
			localPort = n
		}
	}

	throttleCapacity := atoiOrDefault(os.Getenv("PANEHUB_THROTTLE_CAPACITY"), 3)
	if throttleCapacity < 1 {
		throttleCapacity = 3
	}
	throttleWindowSec := atoiOrDefault(os.Getenv("PANEHUB_THROTTLE_WINDOW_SECONDS"), 10)
	if throttleWindowSec < 1 {
		throttleWindowSec = 10
	}

	injectLockTTLSec := atoiOrDefault(os.Getenv("PANEHUB_INJECT_LOCK_TTL_SECONDS"), 30)
	if injectLockTTLSec < 1 {
		injectLockTTLSec = 30
	}

	settingsPath := os.Getenv("PANEHUB_SETTINGS_PATH")
	if settingsPath == "" {
		settingsPath = dataDir + "/settings.toml"
	}

	return Config{
		ListenLogLevel:   level,
		DataDir:          dataDir,
		TransportKind:    transportKind,
		TmuxSocket:       socket,
		TraceStream:      traceStream,
		HistoryLines:     historyLines,
		LocalHost:        localHost,
		LocalPort:        localPort,
		ThrottleCapacity: throttleCapacity,
		ThrottleWindow:   time.Duration(throttleWindowSec) * time.Second,
		InjectLockTTL:    time.Duration(injectLockTTLSec) * time.Second,
		SettingsPath:     settingsPath,
	}
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
