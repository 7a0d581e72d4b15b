package instance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ghrunners/fleet/config"
)

var errBoom = errors.New("token minting failed")

type fakeMinter struct {
	token string
	err   error
}

func (f *fakeMinter) RegistrationToken(ctx context.Context) (string, error) {
	return f.token, f.err
}

func TestBootArgs(t *testing.T) {
	role := &config.Role{
		Name:          "default",
		KernelCmdline: "extra_arg=1",
		CachePaths:    []string{"/var/cache/a:/mnt/a", "/var/cache/b:/mnt/b"},
		Labels:        []string{"self-hosted", "linux"},
	}
	minter := &fakeMinter{token: "AABBCC"}

	args, err := BootArgs(context.Background(), minter, "acme", role, "default-7-ab12")
	if err != nil {
		t.Fatalf("BootArgs: %v", err)
	}

	for _, want := range []string{
		config.DefaultBootArgs,
		"github_token=AABBCC",
		"github_org=acme",
		"extra_arg=1",
		"github_runner_name=default-7-ab12",
		"github_runner_labels=default,self-hosted,linux",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("BootArgs() = %q, missing %q", args, want)
		}
	}
}

func TestBootArgs_TokenError(t *testing.T) {
	role := &config.Role{Name: "default"}
	minter := &fakeMinter{err: errBoom}

	if _, err := BootArgs(context.Background(), minter, "acme", role, "default-7-ab12"); err == nil {
		t.Fatal("expected error from token minter to propagate")
	}
}

func TestName_Shape(t *testing.T) {
	name := Name("default", 7)
	parts := strings.Split(name, "-")
	if len(parts) != 3 {
		t.Fatalf("Name() = %q, want 3 dash-separated segments", name)
	}
	if parts[0] != "default" || parts[1] != "7" || len(parts[2]) != 4 {
		t.Fatalf("Name() = %q, unexpected shape", name)
	}
}

func TestLabels_RoleSlugFirst(t *testing.T) {
	role := &config.Role{Name: "Default", Labels: []string{"self-hosted"}}
	if got, want := Labels(role), "default,self-hosted"; got != want {
		t.Fatalf("Labels() = %q, want %q", got, want)
	}
}
