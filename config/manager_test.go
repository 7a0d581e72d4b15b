package config

import (
	"path/filepath"
	"testing"
)

func testFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("..", "testdata", name)
}

func TestLoadManagerConfig(t *testing.T) {
	cfg, err := LoadManagerConfig(testFixture(t, "config.toml"))
	if err != nil {
		t.Fatalf("LoadManagerConfig: %v", err)
	}
	if cfg.NetworkInterface != "eth0" {
		t.Errorf("NetworkInterface = %q, want %q", cfg.NetworkInterface, "eth0")
	}
	if len(cfg.Roles) != 1 {
		t.Fatalf("len(Roles) = %d, want 1", len(cfg.Roles))
	}
	if got, want := cfg.Roles[0].OverlaySize, uint32(10); got != want {
		t.Errorf("default OverlaySize = %d, want %d", got, want)
	}
	if got, want := cfg.Roles[0].Slug(), "default"; got != want {
		t.Errorf("Slug() = %q, want %q", got, want)
	}
}

func TestManagerValidate_DuplicateRoleNames(t *testing.T) {
	cfg := &Manager{Roles: []Role{{Name: "a"}, {Name: "a"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate role names")
	}
}

func TestRoleByName(t *testing.T) {
	cfg := &Manager{Roles: []Role{{Name: "a"}, {Name: "b"}}}
	if r := cfg.RoleByName("b"); r == nil || r.Name != "b" {
		t.Fatalf("RoleByName(b) = %v", r)
	}
	if r := cfg.RoleByName("missing"); r != nil {
		t.Fatalf("RoleByName(missing) = %v, want nil", r)
	}
}
