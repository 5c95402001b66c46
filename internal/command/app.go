package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"panehub/internal/config"
)

type Deps struct {
	LoadConfig   func() config.Config
	RunServe     func(context.Context, config.Config) error
	RunMigrateUp func(context.Context, config.Config) error
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "panehubd",
		Usage: "per-pane injection and lifecycle coordinator",
		Action: func(ctx *cli.Context) error {
			cfg := loadConfig(deps)
			return runServe(ctx.Context, deps, cfg, ctx)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the coordinator",
				Flags: serveFlags(),
				Action: func(ctx *cli.Context) error {
					cfg := loadConfig(deps)
					return runServe(ctx.Context, deps, cfg, ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							return runMigrateUp(ctx.Context, deps, cfg)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps) config.Config {
	if deps.LoadConfig != nil {
		return deps.LoadConfig()
	}
	return config.LoadConfig()
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "local listen host",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "local listen port",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "coordinator data directory",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "pane transport: tmux or pty",
		},
		&cli.StringFlag{
			Name:  "tmux-socket",
			Usage: "tmux socket path",
		},
	}
}

func runServe(ctx context.Context, deps Deps, cfg config.Config, cliCtx *cli.Context) error {
	if cliCtx != nil && cliCtx.Args().Len() > 0 {
		return fmt.Errorf("unexpected argument: %s", cliCtx.Args().First())
	}
	cfg = applyServeFlagOverrides(cliCtx, cfg)
	if deps.RunServe == nil {
		return errors.New("serve runner is not configured")
	}
	return deps.RunServe(ctx, cfg)
}

func applyServeFlagOverrides(cliCtx *cli.Context, cfg config.Config) config.Config {
	if cliCtx == nil {
		return cfg
	}

	if cliCtx.IsSet("host") {
		cfg.LocalHost = strings.TrimSpace(cliCtx.String("host"))
	}
	if cliCtx.IsSet("port") {
		cfg.LocalPort = cliCtx.Int("port")
	}
	if cliCtx.IsSet("transport") {
		cfg.TransportKind = strings.TrimSpace(cliCtx.String("transport"))
	}
	if cliCtx.IsSet("tmux-socket") {
		cfg.TmuxSocket = strings.TrimSpace(cliCtx.String("tmux-socket"))
	}
	if cliCtx.IsSet("data-dir") {
		dir := strings.TrimSpace(cliCtx.String("data-dir"))
		cfg.DataDir = dir
		_ = os.Setenv("PANEHUB_DATA_DIR", dir)
	}

	return cfg
}

func runMigrateUp(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunMigrateUp == nil {
		return errors.New("migrate up runner is not configured")
	}
	return deps.RunMigrateUp(ctx, cfg)
}
