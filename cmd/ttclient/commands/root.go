package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ttnews/ttclient/internal/app"
	"github.com/ttnews/ttclient/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return rootCommand(version, commit).Run(ctx, args)
}

func rootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:      "ttclient",
		Usage:     "Headline-news API client with automatic token refresh",
		Version:   fmt.Sprintf("%s (%s)", version, commit),
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "API base URL",
			},
			&cli.StringFlag{
				Name:  "locale",
				Usage: "notification language (en|zh)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlp-grpc|otlp-http)",
			},
		},
		Commands: []*cli.Command{
			authCommand(),
			requestCommand(),
			getCommand(),
		},
	}
}

// flagKeys maps root flags to their config keys.
var flagKeys = map[string]string{
	"base-url":     "base_url",
	"locale":       "locale",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-exporter": "log.exporter",
}

// setup loads the config, installs logging and creates the app. The returned
// function flushes log exporters and must be called when the command ends.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, *app.Config, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, nil, nil, err
	}

	shutdown, err := observability.Instrument(ctx, observability.Settings{
		Level:    level,
		Format:   cfg.Log.Format,
		Exporter: cfg.Log.Exporter,
		Output:   cmd.Root().ErrWriter,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	cleanup := func() {
		// ctx may already be canceled by a signal; exporters still get to flush.
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to flush logs", "error", err)
		}
	}

	application, err := app.New(ctx, cfg, cmd.Root().ErrWriter)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	return application, cfg, cleanup, nil
}
