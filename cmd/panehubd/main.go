// Command panehubd runs the per-pane injection and lifecycle coordinator:
// it owns the pane transport (tmux or raw pty), the injection/throttle/
// recovery pipeline, and the HTTP/websocket edge that exposes it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"panehub/internal/appserver"
	"panehub/internal/bus"
	"panehub/internal/command"
	"panehub/internal/config"
	"panehub/internal/coordinator"
	"panehub/internal/db"
	"panehub/internal/journal"
	"panehub/internal/lifecycle"
	"panehub/internal/logging"
	"panehub/internal/paneregistry"
	_ "panehub/internal/progdetector/builtin"
	"panehub/internal/ptyio"
	"panehub/internal/settings"
	"panehub/internal/tmux"
)

const shutdownGrace = 5 * time.Second

func main() {
	app := command.BuildApp(command.Deps{
		RunServe:     runServe,
		RunMigrateUp: runMigrateUp,
	})
	if err := app.Run(os.Args); err != nil {
		logging.NewLogger(logging.Options{Component: "panehubd"}).Error("panehubd.exit", "error", err)
		os.Exit(1)
	}
}

func runMigrateUp(ctx context.Context, cfg config.Config) error {
	log := logging.NewLogger(logging.Options{Level: cfg.ListenLogLevel, Component: "migrate"})
	dsn := dbDSN(cfg)
	gdb, err := db.OpenSQLiteGORMWithMigrations(dsn)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	log.Info("migrate.up.complete", "dsn", dsn)
	return nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := logging.NewLogger(logging.Options{Level: cfg.ListenLogLevel, Component: "panehubd"})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	gdb, err := db.OpenSQLiteGORMWithMigrations(dbDSN(cfg))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	registry, err := paneregistry.NewStore(gdb)
	if err != nil {
		return fmt.Errorf("pane registry: %w", err)
	}
	journalStore, err := journal.NewStore(gdb)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	settingsStore := settings.NewStore(cfg.SettingsPath)
	settingsDoc, err := settingsStore.LoadOrInit()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	transport, err := buildTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}

	coord := coordinator.New(transport, registry, journalStore, log)
	coord.SetOverrides(settingsDoc.ToCapabilityOverrides())
	coord.SetAutoSpawn(settingsDoc.AutoSpawn)
	coord.SetAutonomyConsent(settingsDoc.AutonomyConsentGiven)
	for paneID, cmd := range settingsDoc.PaneCommands {
		coord.SetPaneCommand(paneID, cmd)
	}

	hm := newHandoffManager(journalStore, cfg.DataDir, uuid.NewString(), log)
	defer hm.Close()

	srv, err := appserver.NewServer(appserver.Deps{API: newAPIHandler(coord, hm)})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	wireBusToEdge(coord, srv, hm)

	mgr := lifecycle.NewManager()
	mgr.AddRun("http", func(ctx context.Context) error {
		return serveHTTP(ctx, cfg, srv, log)
	})
	mgr.AddShutdown("coordinator.killall", func(ctx context.Context) error {
		return coord.KillAll()
	})

	log.Info("panehubd.starting", "host", cfg.LocalHost, "port", cfg.LocalPort, "transport", cfg.TransportKind)
	return mgr.StartAndWait(ctx, os.Interrupt, syscall.SIGTERM)
}

func buildTransport(cfg config.Config, log *slog.Logger) (ptyio.Transport, error) {
	switch cfg.TransportKind {
	case "pty":
		return ptyio.NewPTYTransport(""), nil
	case "tmux", "":
		exec := &tmux.RealExec{}
		var adapter *tmux.Adapter
		if cfg.TmuxSocket != "" {
			adapter = tmux.NewAdapterWithSocket(exec, cfg.TmuxSocket)
		} else {
			adapter = tmux.NewAdapter(exec)
		}
		tr := ptyio.NewTmuxTransport(adapter)
		tr.SetLogger(log)
		log.Info("panehubd.tmux_socket", "socket", adapter.SocketName())
		return tr, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.TransportKind)
	}
}

func dbDSN(cfg config.Config) string {
	return cfg.DataDir + "/panehub.db"
}

func wireBusToEdge(coord *coordinator.Coordinator, srv *appserver.Server, hm *handoffManager) {
	forward := func(topics ...string) {
		for _, topic := range topics {
			t := topic
			coord.Bus().On(t, func(ev bus.Event) {
				srv.BroadcastPaneEvent(ev.PaneID, ev.Type, ev.Payload)
			})
		}
	}
	forward("pane.output", "pane.status", "pane.spawned", "pane.exited",
		"delivery.ack", "delivery.outcome",
		"cli.compaction.suspected", "cli.compaction.started", "cli.compaction.ended")

	for _, journalTopic := range []string{"delivery.ack", "delivery.outcome", "pane.exited"} {
		t := journalTopic
		coord.Bus().On(t, func(ev bus.Event) {
			hm.Refresh()
		})
	}
}

func serveHTTP(ctx context.Context, cfg config.Config, srv *appserver.Server, log *slog.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.LocalHost, cfg.LocalPort)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
