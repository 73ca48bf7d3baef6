// Package cli is the command line entry point of the relay.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/config"
	"github.com/yourorg/release-relay/internal/model"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var loggerCfg config.Logger
	var logger *slog.Logger

	app := &cli.Command{
		Name:    "release-relay",
		Usage:   "Mirror GitHub releases into a chat channel",
		Version: model.Version,
		Flags:   loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure(os.Stderr)
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdRun(),
			cmdPreview(),
			cmdEdit(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		return err
	}

	return nil
}

type validator interface {
	Validate() error
}

func validate(groups ...validator) error {
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, g := range groups {
		flags = append(flags, g...)
	}
	return flags
}
