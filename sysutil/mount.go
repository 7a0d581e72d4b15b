package sysutil

import (
	"context"

	"github.com/ghrunners/fleet/execx"
)

// MountImage runs `mount from to`, letting the kernel auto-detect the
// filesystem type (used for the builder's raw rootfs image).
func (f *FS) MountImage(ctx context.Context, from, to string) error {
	_, err := f.Exec.Exec(ctx, execx.New("mount", from, to))
	return err
}

// MountExt4 runs `mount -t ext4 from to`.
func (f *FS) MountExt4(ctx context.Context, from, to string) error {
	_, err := f.Exec.Exec(ctx, execx.New("mount", "-t", "ext4", from, to))
	return err
}

// Unmount runs `umount path`.
func (f *FS) Unmount(ctx context.Context, path string) error {
	_, err := f.Exec.Exec(ctx, execx.New("umount", path))
	return err
}
