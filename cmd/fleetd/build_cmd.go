package main

import (
	"context"
	"fmt"

	"github.com/docker/go-units"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/imagebuild"
)

// BuildCmd builds a container recipe into a raw instance image, embedding
// this same binary into it as /sbin/actions-init.
type BuildCmd struct {
	Dockerfile string `arg:"" help:"path to the Dockerfile describing the instance image"`
	Output     string `arg:"" help:"path to write the finished raw ext4 image"`
	Size       string `default:"0" placeholder:"<size>" help:"size of the raw image, e.g. 10GiB (defaults to 10GiB)"`
}

func (c *BuildCmd) Run(cctx *Context) error {
	var sizeGiB uint64
	if c.Size != "0" {
		bytes, err := units.RAMInBytes(c.Size)
		if err != nil {
			return fmt.Errorf("fleetd: parsing --size %q: %w", c.Size, err)
		}
		sizeGiB = uint64(bytes) / units.GiB
	}

	builder, err := imagebuild.New(execx.Real(), cctx.Log, c.Dockerfile, c.Output, sizeGiB)
	if err != nil {
		return fmt.Errorf("fleetd: constructing builder: %w", err)
	}
	return builder.Build(context.Background())
}
