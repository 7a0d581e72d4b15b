package main

import (
	"context"
	"fmt"

	"github.com/ghrunners/fleet/config"
	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/history"
	"github.com/ghrunners/fleet/instance"
)

// RunCmd starts the supervisor: it provisions every configured role's
// instances and drives them through the tick loop until SIGINT/SIGTERM.
type RunCmd struct {
	Config  string `arg:"" help:"path to the manager TOML configuration file"`
	History string `default:"" placeholder:"<path>" help:"path to a SQLite run-history database (disabled if empty)"`
}

func (c *RunCmd) Run(cctx *Context) error {
	cfg, err := config.LoadManagerConfig(c.Config)
	if err != nil {
		return fmt.Errorf("fleetd: loading config: %w", err)
	}

	sup := instance.NewSupervisor(cfg, execx.Real(), cctx.Log)

	if c.History != "" {
		ledger, err := history.Open(c.History)
		if err != nil {
			return fmt.Errorf("fleetd: opening history database: %w", err)
		}
		defer ledger.Close()
		sup.SetLedger(ledger)
	}

	ctx := context.Background()
	if err := sup.Setup(ctx); err != nil {
		return fmt.Errorf("fleetd: supervisor setup: %w", err)
	}
	return sup.Run(ctx)
}
