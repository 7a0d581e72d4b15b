// Package sysutil wraps the handful of external filesystem utilities the
// fleet manager shells out to (cp, rm, mkdir, mkfs.ext4, dd, du, mount,
// umount, qemu-img), all through an injected execx.Executor.
package sysutil

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ghrunners/fleet/execx"
)

// FS wraps the filesystem-affecting external utilities.
type FS struct {
	Exec execx.Executor
}

// New returns an FS backed by the given executor.
func New(ex execx.Executor) *FS {
	return &FS{Exec: ex}
}

// CopySparse runs `cp --sparse=always from to`.
func (f *FS) CopySparse(ctx context.Context, from, to string) error {
	_, err := f.Exec.Exec(ctx, execx.New("cp", "--sparse=always", from, to))
	return err
}

// RmRF runs `rm -rf path`.
func (f *FS) RmRF(ctx context.Context, path string) error {
	_, err := f.Exec.Exec(ctx, execx.New("rm", "-rf", path))
	return err
}

// MkdirP runs `mkdir -p path`.
func (f *FS) MkdirP(ctx context.Context, path string) error {
	_, err := f.Exec.Exec(ctx, execx.New("mkdir", "-p", path))
	return err
}

// MkfsExt4 runs `mkfs.ext4 path`.
func (f *FS) MkfsExt4(ctx context.Context, path string) error {
	_, err := f.Exec.Exec(ctx, execx.New("mkfs.ext4", path))
	return err
}

// DD runs `dd if=/dev/zero of=path conv=sparse bs=1M count=sizeInMiB`,
// producing a sparse file of the requested size.
func (f *FS) DD(ctx context.Context, path string, sizeInMiB uint64) error {
	_, err := f.Exec.Exec(ctx, execx.New("dd",
		"if=/dev/zero",
		fmt.Sprintf("of=%s", path),
		"conv=sparse",
		"bs=1M",
		fmt.Sprintf("count=%d", sizeInMiB),
	))
	return err
}

// DU runs `du path` and returns the reported size in KiB.
func (f *FS) DU(ctx context.Context, path string) (uint64, error) {
	res, err := f.Exec.Exec(ctx, execx.New("du", path))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return 0, fmt.Errorf("sysutil: could not parse du output %q", res.Stdout)
	}
	size, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sysutil: could not parse %q as a size: %w", fields[0], err)
	}
	return size, nil
}

// QemuImgCreate runs `qemu-img create -f raw path <sizeGiB>G`, the
// host image-creation utility used by the image builder (C3).
func (f *FS) QemuImgCreate(ctx context.Context, path string, sizeGiB uint64) error {
	_, err := f.Exec.Exec(ctx, execx.New("qemu-img", "create", "-f", "raw", path, fmt.Sprintf("%dG", sizeGiB)))
	return err
}
