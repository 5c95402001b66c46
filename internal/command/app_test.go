package command

import (
	"context"
	"os"
	"testing"

	"panehub/internal/config"
)

func TestBuildApp_DefaultCommandRunsServe(t *testing.T) {
	serveCalled := 0
	migrateCalled := 0
	app := BuildApp(Deps{
		LoadConfig: func() config.Config {
			return config.Config{}
		},
		RunServe: func(context.Context, config.Config) error {
			serveCalled++
			return nil
		},
		RunMigrateUp: func(context.Context, config.Config) error {
			migrateCalled++
			return nil
		},
	})
	if err := app.RunContext(context.Background(), []string{"panehubd"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if serveCalled != 1 || migrateCalled != 0 {
		t.Fatalf("unexpected call count serve=%d migrate=%d", serveCalled, migrateCalled)
	}
}

func TestBuildApp_ServeCommand_Runs(t *testing.T) {
	serveCalled := 0
	app := BuildApp(Deps{
		LoadConfig: func() config.Config {
			return config.Config{}
		},
		RunServe: func(context.Context, config.Config) error {
			serveCalled++
			return nil
		},
	})
	if err := app.RunContext(context.Background(), []string{"panehubd", "serve"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if serveCalled != 1 {
		t.Fatalf("unexpected call count serve=%d", serveCalled)
	}
}

func TestBuildApp_ServeFlags_OverrideConfig(t *testing.T) {
	var got config.Config
	app := BuildApp(Deps{
		LoadConfig: func() config.Config {
			return config.Config{
				LocalHost:     "127.0.0.1",
				LocalPort:     4621,
				TmuxSocket:    "",
				TransportKind: "tmux",
			}
		},
		RunServe: func(_ context.Context, cfg config.Config) error {
			got = cfg
			return nil
		},
	})
	args := []string{
		"panehubd", "serve",
		"--host", "0.0.0.0",
		"--port", "4701",
		"--tmux-socket", "/tmp/tmux.sock",
		"--transport", "pty",
	}
	if err := app.RunContext(context.Background(), args); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got.LocalHost != "0.0.0.0" || got.LocalPort != 4701 || got.TmuxSocket != "/tmp/tmux.sock" || got.TransportKind != "pty" {
		t.Fatalf("override failed: %#v", got)
	}
}

func TestBuildApp_ServeFlagDataDir_SetsEnv(t *testing.T) {
	app := BuildApp(Deps{
		LoadConfig: func() config.Config { return config.Config{} },
		RunServe:   func(context.Context, config.Config) error { return nil },
	})
	if err := app.RunContext(context.Background(), []string{"panehubd", "serve", "--data-dir", "/flag/dir"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := os.Getenv("PANEHUB_DATA_DIR"); got != "/flag/dir" {
		t.Fatalf("unexpected data dir env: %s", got)
	}
}

func TestBuildApp_MigrateUpCommand(t *testing.T) {
	migrateCalled := 0
	app := BuildApp(Deps{
		LoadConfig: func() config.Config {
			return config.Config{}
		},
		RunServe: func(context.Context, config.Config) error { return nil },
		RunMigrateUp: func(context.Context, config.Config) error {
			migrateCalled++
			return nil
		},
	})
	if err := app.RunContext(context.Background(), []string{"panehubd", "migrate", "up"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if migrateCalled != 1 {
		t.Fatalf("expected migrate command called once, got %d", migrateCalled)
	}
}
