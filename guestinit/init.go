// Package guestinit implements the guest-side boot phases that run as
// PID 1 inside every instance (spec.md §5): network discovery, DNS,
// cache mounting, and installing the job runner before handing off to
// the image's real init.
package guestinit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/ghrunners/fleet/execx"
)

// Env carries the kernel command-line arguments this phase reads,
// collected up front so the rest of the package stays free of direct
// os.Getenv calls.
type Env struct {
	CachePaths         string
	GithubOrg          string
	GithubToken        string
	GithubRunnerName   string
	GithubRunnerLabels string
}

// EnvFromProcess reads the kernel-argument-derived environment variables
// actions-init boots with.
func EnvFromProcess() Env {
	return Env{
		CachePaths:         os.Getenv("cache_paths"),
		GithubOrg:          os.Getenv("github_org"),
		GithubToken:        os.Getenv("github_token"),
		GithubRunnerName:   os.Getenv("github_runner_name"),
		GithubRunnerLabels: os.Getenv("github_runner_labels"),
	}
}

// Run executes every boot phase in order and execs /sbin/init on
// success, never returning. Each phase's failure is logged and aborts
// the boot, since a guest that cannot set up its network or runner is
// not worth continuing to boot (spec.md §5).
func Run(ctx context.Context, ex execx.Executor, log *slog.Logger, ownPath string, env Env) error {
	log.Debug("setting up network")
	iface, err := SetupNetwork(ctx, ex)
	if err != nil {
		return fmt.Errorf("guestinit: network setup failed: %w", err)
	}
	if iface != nil {
		log.Info("network setup complete", "interface", iface.IfName, "own", iface.OwnAddress, "host", iface.HostAddr)
	} else {
		log.Info("no magic address found, skipping network setup")
	}

	log.Debug("setting up dns")
	if err := SetupDNS(); err != nil {
		return fmt.Errorf("guestinit: dns setup failed: %w", err)
	}
	log.Info("dns setup complete")

	log.Debug("setting up cache")
	if env.CachePaths != "" {
		if err := SetupCache(ctx, ex, env.CachePaths); err != nil {
			return fmt.Errorf("guestinit: cache setup failed: %w", err)
		}
		log.Info("cache setup complete")
	} else {
		log.Info("no cache_paths kernel arg found, skipping cache setup")
	}

	log.Debug("setting up actions-runner")
	if env.GithubOrg != "" && env.GithubToken != "" && env.GithubRunnerName != "" && env.GithubRunnerLabels != "" {
		if err := copyFile(ownPath, "/sbin/actions-run"); err != nil {
			return fmt.Errorf("guestinit: copying self to /sbin/actions-run: %w", err)
		}
		if err := WriteService(env.GithubOrg, env.GithubToken, env.GithubRunnerName, env.GithubRunnerLabels); err != nil {
			return fmt.Errorf("guestinit: writing runner service: %w", err)
		}
		if err := EnableService(); err != nil {
			return fmt.Errorf("guestinit: enabling runner service: %w", err)
		}
	} else {
		log.Info("no github_org, github_token, github_runner_name, or github_runner_labels kernel arg found, skipping actions-runner setup")
	}

	return execInit()
}

func copyFile(from, to string) error {
	data, err := os.ReadFile(from)
	if err != nil {
		return err
	}
	return os.WriteFile(to, data, 0o755)
}

// execInit replaces the current process image with /sbin/init, exactly
// as PID 1 must to hand off to the image's real init system.
func execInit() error {
	return syscall.Exec("/sbin/init", []string{"/sbin/init"}, os.Environ())
}
