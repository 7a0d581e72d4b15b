// Package config holds the TOML-loaded manager/role configuration and the
// JSON hypervisor launch document, mirroring the split between
// original_source's config::manager and config::firecracker modules.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultBootArgs are the kernel command-line arguments every instance
// boots with, before role/token/cache/label arguments are appended
// (spec.md §3 BootArguments).
const DefaultBootArgs = "random.trust_cpu=on reboot=k panic=1 pci=off overlay_root=vdb init=/sbin/actions-init"

const defaultOverlaySizeGiB = 10

// Role is a declared class of worker (spec.md §3).
type Role struct {
	Name          string   `toml:"name"`
	KernelImage   string   `toml:"kernel_image"`
	KernelCmdline string   `toml:"kernel_cmdline"`
	RootfsImage   string   `toml:"rootfs_image"`
	CPUs          uint32   `toml:"cpus"`
	MemorySize    uint32   `toml:"memory_size"`
	CacheSize     uint32   `toml:"cache_size"`
	OverlaySize   uint32   `toml:"overlay_size"`
	InstanceCount uint8    `toml:"instance_count"`
	CachePaths    []string `toml:"cache_paths"`
	Labels        []string `toml:"labels"`
}

// Slug is the role's name lowercased, used as the instance work-directory
// segment and as an implicit label.
func (r Role) Slug() string {
	return toLower(r.Name)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Manager is the top-level TOML configuration document (spec.md §6).
type Manager struct {
	NetworkInterface string `toml:"network_interface"`
	RunPath          string `toml:"run_path"`
	GithubOrg        string `toml:"github_org"`
	GithubPAT        string `toml:"github_pat"`
	Roles            []Role `toml:"roles"`
}

// LoadManagerConfig parses a TOML configuration file, applying the
// defaults from spec.md §6 (overlay_size=10, cache_paths/labels=[]) to
// any role that omits them.
func LoadManagerConfig(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Manager
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	for i := range cfg.Roles {
		if cfg.Roles[i].OverlaySize == 0 {
			cfg.Roles[i].OverlaySize = defaultOverlaySizeGiB
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants from spec.md §3: role names unique,
// instance_count >= 0 (always true for an unsigned type, kept for
// documentation of intent).
func (m *Manager) Validate() error {
	seen := make(map[string]bool, len(m.Roles))
	for _, r := range m.Roles {
		if seen[r.Name] {
			return fmt.Errorf("config: duplicate role name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// RoleByName returns the role with the given name, or nil if not found.
func (m *Manager) RoleByName(name string) *Role {
	for i := range m.Roles {
		if m.Roles[i].Name == name {
			return &m.Roles[i]
		}
	}
	return nil
}
