package config

import (
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/logging"
)

// Logger holds logger configuration
type Logger struct {
	Level  string
	Format string
}

// Flags returns CLI flags for logger configuration
func (c *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &c.Level,
			Sources:     cli.EnvVars("RELAY_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (text, json, console)",
			Value:       logging.FormatText,
			Destination: &c.Format,
			Sources:     cli.EnvVars("RELAY_LOG_FORMAT"),
		},
	}
}

// Configure configures and returns a logger writing to w
func (c *Logger) Configure(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level, c.Format)
}
