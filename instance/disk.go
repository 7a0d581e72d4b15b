// Package instance implements the per-VM state machine, restart policy,
// artifact staging, and fleet-level supervision loop (spec.md §4.4).
package instance

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/sysutil"
)

// DiskFormat names the on-disk filesystem format. Only ext4 is currently
// supported (spec.md §3).
type DiskFormat string

// Ext4 is the only supported disk format.
const Ext4 DiskFormat = "ext4"

// Disk is a sparse-file descriptor for a single block device backing an
// instance (its rootfs clone or scratch cache disk).
type Disk struct {
	Dir    string
	Name   string
	SizeGB uint32
	Format DiskFormat

	fs *sysutil.FS
}

// NewDisk returns a Disk rooted at dir, named name, of the given size.
func NewDisk(ex execx.Executor, dir, name string, sizeGB uint32, format DiskFormat) *Disk {
	return &Disk{Dir: dir, Name: name, SizeGB: sizeGB, Format: format, fs: sysutil.New(ex)}
}

// SizeInMiB returns the disk's capacity in MiB.
func (d *Disk) SizeInMiB() uint64 {
	return uint64(d.SizeGB) * 1024
}

// SizeInKiB returns the disk's capacity in KiB.
func (d *Disk) SizeInKiB() uint64 {
	return d.SizeInMiB() * 1024
}

// Filename is the on-disk filename: "<name>.<format>".
func (d *Disk) Filename() string {
	return fmt.Sprintf("%s.%s", d.Name, d.Format)
}

// PathWithFilename joins Dir and Filename.
func (d *Disk) PathWithFilename() string {
	return filepath.Join(d.Dir, d.Filename())
}

// Setup creates the sparse backing file and formats it.
func (d *Disk) Setup(ctx context.Context) error {
	switch d.Format {
	case Ext4:
		if err := d.fs.DD(ctx, d.PathWithFilename(), d.SizeInMiB()); err != nil {
			return fmt.Errorf("disk %s: dd: %w", d.Name, err)
		}
		if err := d.fs.MkfsExt4(ctx, d.PathWithFilename()); err != nil {
			return fmt.Errorf("disk %s: mkfs.ext4: %w", d.Name, err)
		}
		return nil
	default:
		return fmt.Errorf("disk %s: unsupported format %q", d.Name, d.Format)
	}
}

// Destroy removes the disk's backing file.
func (d *Disk) Destroy(ctx context.Context) error {
	return d.fs.RmRF(ctx, d.PathWithFilename())
}

// UsagePct returns the percentage of capacity currently used on disk,
// saturating to 100 (spec.md §3).
func (d *Disk) UsagePct(ctx context.Context) (uint8, error) {
	capacity := d.SizeInKiB()
	if capacity == 0 {
		return 0, fmt.Errorf("disk %s: zero capacity", d.Name)
	}
	usedKiB, err := d.fs.DU(ctx, d.PathWithFilename())
	if err != nil {
		return 0, err
	}
	pct := usedKiB * 100 / capacity
	if pct > 100 {
		pct = 100
	}
	return uint8(pct), nil
}
