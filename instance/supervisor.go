// Package instance also hosts the Supervisor: the fleet-level tick loop
// that drives every role's instances through the per-instance state
// machine (spec.md §4.4).
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/ghrunners/fleet/config"
	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/ghapi"
	"github.com/ghrunners/fleet/history"
	"github.com/ghrunners/fleet/netaddr"
)

const (
	tickInterval    = 1 * time.Second
	erroredCooldown = 20 * time.Second
	debugSlot       = 201
)

// slot pairs an instance with the tick it last entered Errored at, to
// implement the 20-second cooldown before a reset is attempted.
type slot struct {
	inst      *Instance
	erroredAt time.Time
	inErrored bool

	runID  history.RunID
	hasRun bool
}

// Supervisor drives every configured role's instances through the
// lifecycle loop described in spec.md §4.4: tick once a second, start
// NotStarted/NotRunning instances, leave Running instances alone, and
// reset Errored instances after a cooldown.
type Supervisor struct {
	cfg  *config.Manager
	exec execx.Executor
	log  *slog.Logger

	forwarding *netaddr.Forwarding
	allocator  *netaddr.Allocator
	slots      []*slot
	ledger     *history.Ledger

	draining atomic.Bool
	lock     *flock.Flock
}

// SetLedger attaches a run-history ledger. Recording is entirely
// best-effort: a nil ledger (the default) simply means no run history is
// kept, and a recording failure is logged but never fails the tick it
// happened on, since the ledger never gates scheduling decisions.
func (s *Supervisor) SetLedger(l *history.Ledger) {
	s.ledger = l
}

// NewSupervisor builds a Supervisor for cfg, but does not touch host state
// until Setup is called.
func NewSupervisor(cfg *config.Manager, ex execx.Executor, log *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		exec:       ex,
		log:        log,
		forwarding: netaddr.NewForwarding(ex, cfg.NetworkInterface),
		allocator:  netaddr.NewAllocator(),
	}
}

// Setup applies the one-time forwarding rule, then allocates a network
// slot, constructs, and provisions every configured instance across every
// role, under an exclusive file lock so a second supervisor process
// cannot start against the same run_path concurrently.
func (s *Supervisor) Setup(ctx context.Context) error {
	s.lock = flock.New(filepath.Join(s.cfg.RunPath, "supervisor.lock"))
	locked, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("supervisor: acquiring run_path lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("supervisor: run_path %s is already held by another supervisor", s.cfg.RunPath)
	}

	if err := s.forwarding.Setup(ctx); err != nil {
		return fmt.Errorf("supervisor: forwarding setup: %w", err)
	}

	github := ghapi.New(s.cfg.GithubOrg, s.cfg.GithubPAT)

	for ri := range s.cfg.Roles {
		role := &s.cfg.Roles[ri]
		for n := uint8(0); n < role.InstanceCount; n++ {
			idx, err := s.allocator.Allocate(fmt.Sprintf("%s/%d", role.Name, n))
			if err != nil {
				return fmt.Errorf("supervisor: allocating slot for role %s: %w", role.Name, err)
			}
			alloc := netaddr.NewAllocation(s.exec, s.cfg.NetworkInterface, idx)
			inst := New(s.exec, s.cfg.RunPath, role, alloc, idx, github)
			if err := inst.Setup(ctx); err != nil {
				return fmt.Errorf("supervisor: provisioning %s: %w", inst.Name(), err)
			}
			s.log.Info("provisioned instance", "name", inst.Name(), "role", role.Name, "slot", idx)
			s.slots = append(s.slots, &slot{inst: inst})
		}
	}
	return nil
}

// Run enters the 1-second tick loop until the process receives SIGINT,
// at which point every instance is stopped and cleaned up before Run
// returns (spec.md §4.4.3).
func (s *Supervisor) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			s.draining.Store(true)
			s.log.Info("draining: stopping all instances")
			return s.drain(context.Background())
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, sl := range s.slots {
		sl := sl
		g.Go(func() error {
			s.tickOne(gctx, sl)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Supervisor) tickOne(ctx context.Context, sl *slot) {
	st := sl.inst.State(ctx)
	switch st {
	case NotStarted, NotRunning:
		sl.inErrored = false
		s.recordEnd(ctx, sl, "exited")
		if err := sl.inst.SetupRun(ctx); err != nil {
			s.log.Error("setup_run failed", "instance", sl.inst.Name(), "err", err)
			return
		}
		if err := sl.inst.Start(ctx); err != nil {
			s.log.Error("start failed", "instance", sl.inst.Name(), "err", err)
			return
		}
		s.recordStart(ctx, sl)
		s.log.Info("started instance", "instance", sl.inst.Name())
	case Running:
		sl.inErrored = false
	case Errored:
		if !sl.inErrored {
			sl.inErrored = true
			sl.erroredAt = time.Now()
			s.recordEnd(ctx, sl, "errored")
			s.log.Warn("instance entered errored state", "instance", sl.inst.Name())
			return
		}
		if time.Since(sl.erroredAt) < erroredCooldown {
			return
		}
		s.log.Warn("resetting errored instance after cooldown", "instance", sl.inst.Name())
		if err := sl.inst.Reset(ctx); err != nil {
			s.log.Error("reset failed", "instance", sl.inst.Name(), "err", err)
			return
		}
		sl.inErrored = false
	}
}

func (s *Supervisor) recordStart(ctx context.Context, sl *slot) {
	if s.ledger == nil {
		return
	}
	id, err := s.ledger.RecordStart(ctx, sl.inst.Role.Name, sl.inst.Slot, sl.inst.Name())
	if err != nil {
		s.log.Error("recording run start", "instance", sl.inst.Name(), "err", err)
		return
	}
	sl.runID = id
	sl.hasRun = true
}

func (s *Supervisor) recordEnd(ctx context.Context, sl *slot, status string) {
	if s.ledger == nil || !sl.hasRun {
		return
	}
	if err := s.ledger.RecordEnd(ctx, sl.runID, status); err != nil {
		s.log.Error("recording run end", "instance", sl.inst.Name(), "err", err)
	}
	sl.hasRun = false
}

func (s *Supervisor) drain(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sl := range s.slots {
		sl := sl
		g.Go(func() error {
			if err := sl.inst.Stop(gctx); err != nil {
				s.log.Error("stop failed during drain", "instance", sl.inst.Name(), "err", err)
			}
			s.recordEnd(gctx, sl, "killed")
			if err := sl.inst.Cleanup(gctx); err != nil {
				s.log.Error("cleanup failed during drain", "instance", sl.inst.Name(), "err", err)
			}
			return nil
		})
	}
	err := g.Wait()
	if unlockErr := s.lock.Unlock(); unlockErr != nil {
		s.log.Error("releasing run_path lock", "err", unlockErr)
	}
	return err
}

// Draining reports whether the supervisor has begun its shutdown drain.
func (s *Supervisor) Draining() bool {
	return s.draining.Load()
}

// Debug bypasses the tick loop entirely: it constructs a single instance
// for role at slot (defaulting to debugSlot when slot is 0), provisions
// it, prepends a serial console to its boot arguments, and runs it in the
// foreground until it exits (spec.md §4.4, fleetd's "debug" subcommand).
func (s *Supervisor) Debug(ctx context.Context, roleName string, requestedSlot uint8) error {
	role := s.cfg.RoleByName(roleName)
	if role == nil {
		return fmt.Errorf("supervisor: no such role %q", roleName)
	}
	idx := requestedSlot
	if idx == 0 {
		idx = debugSlot
	}

	github := ghapi.New(s.cfg.GithubOrg, s.cfg.GithubPAT)
	alloc := netaddr.NewAllocation(s.exec, s.cfg.NetworkInterface, idx)
	inst := New(s.exec, s.cfg.RunPath, role, alloc, idx, github)

	if err := inst.Setup(ctx); err != nil {
		return fmt.Errorf("supervisor: debug setup: %w", err)
	}
	if err := inst.SetupRun(ctx, "console=ttyS0"); err != nil {
		return fmt.Errorf("supervisor: debug setup_run: %w", err)
	}

	s.log.Info("starting debug instance", "instance", inst.Name(), "role", roleName, "slot", idx)
	return inst.RunOnce(ctx)
}
