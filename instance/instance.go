package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghrunners/fleet/config"
	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/ghapi"
	"github.com/ghrunners/fleet/netaddr"
	"github.com/ghrunners/fleet/sysutil"
)

const firecrackerBin = "firecracker"

// Instance is one running (or about to run) microVM: its assigned network
// slot, its two block devices (a private rootfs clone and a scratch cache
// disk), and the spawned hypervisor child process, if any (spec.md §4.4).
type Instance struct {
	Role       *config.Role
	Allocation *netaddr.Allocation
	Slot       uint8
	WorkDir    string

	rootfs *Disk
	cache  *Disk

	github *ghapi.Client
	fs     *sysutil.FS
	exec   execx.Executor

	name  string
	child execx.Handle
}

// New returns an Instance for role at slot, rooted at runPath/<role>/<slot>.
func New(ex execx.Executor, runPath string, role *config.Role, alloc *netaddr.Allocation, slot uint8, github *ghapi.Client) *Instance {
	workDir := filepath.Join(runPath, role.Slug(), fmt.Sprintf("%d", slot))
	return &Instance{
		Role:       role,
		Allocation: alloc,
		Slot:       slot,
		WorkDir:    workDir,
		rootfs:     NewDisk(ex, workDir, "rootfs", role.OverlaySize, Ext4),
		cache:      NewDisk(ex, workDir, "cache", role.CacheSize, Ext4),
		github:     github,
		fs:         sysutil.New(ex),
		exec:       ex,
		name:       Name(role.Slug(), slot),
	}
}

// LogPrefix is prepended to every log line this instance emits.
func (i *Instance) LogPrefix() string {
	return fmt.Sprintf("[%s] ", i.name)
}

// Name is the instance's runner name, fixed at construction time so it
// stays stable across restarts within the same Setup (spec.md §3).
func (i *Instance) Name() string {
	return i.name
}

// Labels is the comma-joined role slug and role labels.
func (i *Instance) Labels() string {
	return Labels(i.Role)
}

func (i *Instance) configPath() string {
	return filepath.Join(i.WorkDir, "config.json")
}

// Setup creates the work directory, clones the role's rootfs image into a
// private sparse overlay, provisions the scratch cache disk, and applies
// the instance's network allocation. It is idempotent: Allocation.Setup
// tolerates re-application of already-applied host state (spec.md §4.2).
func (i *Instance) Setup(ctx context.Context) error {
	if err := i.fs.MkdirP(ctx, i.WorkDir); err != nil {
		return fmt.Errorf("instance %s: mkdir work dir: %w", i.name, err)
	}
	if err := i.fs.CopySparse(ctx, i.Role.RootfsImage, i.rootfs.PathWithFilename()); err != nil {
		return fmt.Errorf("instance %s: cloning rootfs: %w", i.name, err)
	}
	if err := i.cache.Setup(ctx); err != nil {
		return fmt.Errorf("instance %s: provisioning cache disk: %w", i.name, err)
	}
	if err := i.Allocation.Setup(ctx); err != nil {
		return fmt.Errorf("instance %s: network setup: %w", i.name, err)
	}
	return nil
}

// Config builds the hypervisor launch document for this instance. The
// memory_size*1024 multiplication is carried over from original_source
// unchanged (spec.md §9, DESIGN.md).
func (i *Instance) Config(bootArgs string) config.HypervisorConfig {
	return config.HypervisorConfig{
		BootSource: config.BootSource{
			KernelImagePath: i.Role.KernelImage,
			BootArgs:        bootArgs,
		},
		Drives: []config.Drive{
			{ID: "rootfs", HostPath: i.rootfs.PathWithFilename(), Root: true, ReadOnly: false},
			{ID: "cache", HostPath: i.cache.PathWithFilename(), Root: false, ReadOnly: false},
		},
		NetworkInterfaces: []config.NetworkInterface{
			{ID: "eth0", GuestMAC: i.Allocation.GuestMAC, HostDevName: i.Allocation.TapName},
		},
		MachineConfig: config.MachineConfig{
			VCPUCount:  i.Role.CPUs,
			MemSizeMiB: i.Role.MemorySize * 1024,
		},
	}
}

// SetupRun mints a fresh registration token, assembles the boot arguments,
// builds the launch document, and writes it to config.json. It must be
// called immediately before every Start, because registration tokens
// expire quickly (spec.md §3). extraBootArgs, if given, is prepended to
// the assembled argument string (used by Debug to attach a serial
// console).
func (i *Instance) SetupRun(ctx context.Context, extraBootArgs ...string) error {
	bootArgs, err := BootArgs(ctx, i.github, i.github.Org, i.Role, i.name)
	if err != nil {
		return fmt.Errorf("instance %s: %w", i.name, err)
	}
	if len(extraBootArgs) > 0 {
		bootArgs = strings.Join(extraBootArgs, " ") + " " + bootArgs
	}
	cfg := i.Config(bootArgs)
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("instance %s: marshalling launch document: %w", i.name, err)
	}
	if err := os.WriteFile(i.configPath(), data, 0o600); err != nil {
		return fmt.Errorf("instance %s: writing %s: %w", i.name, i.configPath(), err)
	}
	return nil
}

// Start spawns the hypervisor in the background, non-blocking, recording
// the live child handle for later polling by State.
func (i *Instance) Start(ctx context.Context) error {
	handle, err := i.exec.ExecSpawn(ctx, execx.New(firecrackerBin, "--no-api", "--config-file", i.configPath()).WithDir(i.WorkDir))
	if err != nil {
		return fmt.Errorf("instance %s: starting hypervisor: %w", i.name, err)
	}
	i.child = handle
	return nil
}

// RunOnce runs the hypervisor to completion in the foreground, with a pty
// attached to stdio, for interactive debug sessions (fleetd debug). It
// blocks until the hypervisor exits.
func (i *Instance) RunOnce(ctx context.Context) error {
	cmd := execx.New(firecrackerBin, "--no-api", "--config-file", i.configPath()).WithDir(i.WorkDir)

	if interactive, ok := i.exec.(execx.Interactive); ok {
		return interactive.RunInteractive(ctx, cmd)
	}

	// Mock executors in tests do not implement Interactive; fall back to
	// a plain blocking spawn.
	handle, err := i.exec.ExecSpawn(ctx, cmd)
	if err != nil {
		return fmt.Errorf("instance %s: debug run: %w", i.name, err)
	}
	i.child = handle
	return handle.Wait()
}

// State polls the child process without blocking and reports its
// lifecycle state (spec.md §4.4.1). A nil child (never started, or reset)
// is NotStarted.
func (i *Instance) State(ctx context.Context) State {
	if i.child == nil {
		return NotStarted
	}
	exited, err := i.child.TryWait()
	if !exited {
		return Running
	}
	if err != nil {
		return Errored
	}
	return NotRunning
}

// Stop kills the child process if running, best-effort deregisters the
// runner's registration token, and clears the child handle. RemoveToken
// failures are logged and swallowed, never returned, per its own doc
// comment's best-effort contract: a transient GitHub API error must not
// block Cleanup/Reset from reclaiming disk and work-directory state.
func (i *Instance) Stop(ctx context.Context) error {
	if i.child != nil {
		_ = i.child.Kill()
		i.child = nil
	}
	if err := i.github.RemoveToken(ctx, i.name); err != nil {
		slog.ErrorContext(ctx, "instance remove-token failed", "instance", i.name, "error", err)
	}
	return nil
}

// Cleanup stops the instance and removes its disks and work directory.
// Network state (tap device, iptables rule) is intentionally left in
// place for the allocator to reclaim on next Setup, mirroring
// Allocation.Setup's idempotent re-application (spec.md §4.2).
func (i *Instance) Cleanup(ctx context.Context) error {
	if err := i.Stop(ctx); err != nil {
		return err
	}
	if err := i.rootfs.Destroy(ctx); err != nil {
		return fmt.Errorf("instance %s: removing rootfs disk: %w", i.name, err)
	}
	if err := i.cache.Destroy(ctx); err != nil {
		return fmt.Errorf("instance %s: removing cache disk: %w", i.name, err)
	}
	if err := i.fs.RmRF(ctx, i.WorkDir); err != nil {
		return fmt.Errorf("instance %s: removing work dir: %w", i.name, err)
	}
	return nil
}

// Reset cleans up and re-provisions the instance in place, used to
// recover from the Errored state after its cooldown elapses (spec.md
// §4.4.3). Its runner name is regenerated so GitHub sees a fresh runner.
func (i *Instance) Reset(ctx context.Context) error {
	if err := i.Cleanup(ctx); err != nil {
		return err
	}
	i.name = Name(i.Role.Slug(), i.Slot)
	return i.Setup(ctx)
}
