package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Ledger backends
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
)

// Loop holds polling configuration
type Loop struct {
	Interval      time.Duration
	MaxPerCycle   int
	LedgerBackend string
	AdminAddr     string
}

// Flags returns CLI flags for the polling loop
func (c *Loop) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "Time between release checks",
			Value:       time.Minute,
			Destination: &c.Interval,
			Sources:     cli.EnvVars("RELAY_INTERVAL"),
		},
		&cli.IntFlag{
			Name:        "max-per-cycle",
			Usage:       "Maximum create/update calls per check, 0 for unlimited",
			Destination: &c.MaxPerCycle,
			Sources:     cli.EnvVars("RELAY_MAX_PER_CYCLE"),
		},
		&cli.StringFlag{
			Name:        "ledger-backend",
			Usage:       "Delivery ledger store (memory, sqlite); both are in-process only",
			Value:       LedgerMemory,
			Destination: &c.LedgerBackend,
			Sources:     cli.EnvVars("RELAY_LEDGER_BACKEND"),
		},
		&cli.StringFlag{
			Name:        "admin-addr",
			Usage:       "Admin HTTP listen address, empty to disable",
			Destination: &c.AdminAddr,
			Sources:     cli.EnvVars("RELAY_ADMIN_ADDR"),
		},
	}
}

// Validate checks interval and backend
func (c *Loop) Validate() error {
	if c.Interval < time.Second {
		return goerr.New("interval must be at least 1s", goerr.V("interval", c.Interval))
	}
	if c.MaxPerCycle < 0 {
		return goerr.New("max-per-cycle must not be negative")
	}
	switch c.LedgerBackend {
	case LedgerMemory, LedgerSQLite:
	default:
		return goerr.New("invalid ledger-backend", goerr.V("backend", c.LedgerBackend))
	}
	return nil
}
