package instance

import (
	"context"
	"testing"

	"github.com/ghrunners/fleet/execx"
)

func TestDisk_Setup(t *testing.T) {
	m := execx.NewMock()
	m.Expect("dd if=/dev/zero of=/work/cache.ext4 conv=sparse bs=1M count=4096", &execx.Result{}, nil)
	m.Expect("mkfs.ext4 /work/cache.ext4", &execx.Result{}, nil)

	d := NewDisk(m, "/work", "cache", 4, Ext4)
	if err := d.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
}

func TestDisk_UsagePct_Saturates(t *testing.T) {
	m := execx.NewMock()
	// 4 GiB capacity = 4194304 KiB; report far more used than capacity.
	m.Expect("du /work/cache.ext4", &execx.Result{Stdout: "8388608\t/work/cache.ext4"}, nil)

	d := NewDisk(m, "/work", "cache", 4, Ext4)
	pct, err := d.UsagePct(context.Background())
	if err != nil {
		t.Fatalf("UsagePct: %v", err)
	}
	if pct != 100 {
		t.Fatalf("UsagePct() = %d, want 100", pct)
	}
}

func TestDisk_Destroy(t *testing.T) {
	m := execx.NewMock()
	m.Expect("rm -rf /work/cache.ext4", &execx.Result{}, nil)

	d := NewDisk(m, "/work", "cache", 4, Ext4)
	if err := d.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestDisk_Filename(t *testing.T) {
	d := NewDisk(execx.NewMock(), "/work", "cache", 4, Ext4)
	if got, want := d.Filename(), "cache.ext4"; got != want {
		t.Fatalf("Filename() = %q, want %q", got, want)
	}
	if got, want := d.PathWithFilename(), "/work/cache.ext4"; got != want {
		t.Fatalf("PathWithFilename() = %q, want %q", got, want)
	}
}
