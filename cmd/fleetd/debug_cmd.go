package main

import (
	"context"
	"fmt"

	"github.com/ghrunners/fleet/config"
	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/instance"
)

// DebugCmd runs a single instance of one role in the foreground with a
// serial console attached, bypassing the tick loop entirely.
type DebugCmd struct {
	Config string `arg:"" help:"path to the manager TOML configuration file"`
	Role   string `arg:"" help:"name of the role to run"`
	Slot   uint8  `default:"0" help:"network slot to use (defaults to the reserved debug slot)"`
}

func (c *DebugCmd) Run(cctx *Context) error {
	cfg, err := config.LoadManagerConfig(c.Config)
	if err != nil {
		return fmt.Errorf("fleetd: loading config: %w", err)
	}

	sup := instance.NewSupervisor(cfg, execx.Real(), cctx.Log)
	return sup.Debug(context.Background(), c.Role, c.Slot)
}
