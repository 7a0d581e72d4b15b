package instance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghrunners/fleet/config"
	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/ghapi"
	"github.com/ghrunners/fleet/netaddr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTokenServer returns a server that mints a fixed registration token
// for any request, closing over t so the caller only needs to defer Close.
func newTokenServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"AABBCC","expires_at":"2026-01-01T00:00:00Z"}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// newNoopGithubServer answers any request with 204, standing in for both
// the registration-token and remove-token endpoints.
func newNoopGithubServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// TestTickOne_ErroredCooldown exercises the single-instance state
// transition a tick applies: a first Errored observation is recorded but
// not reset, and only a later tick past the cooldown triggers Reset.
func TestTickOne_ErroredCooldown(t *testing.T) {
	m := execx.NewMock()
	role := &config.Role{Name: "default", RootfsImage: "/rootfs.ext4", InstanceCount: 1}
	alloc := netaddr.NewAllocation(m, "eth0", 3)
	github := ghapi.New("acme", "fake-pat")
	inst := New(m, "/run/fleet", role, alloc, 3, github)
	inst.github.BaseURL = newNoopGithubServer(t)

	s := &Supervisor{exec: m, log: discardLogger()}
	sl := &slot{inst: inst}

	// Force the instance into Errored by giving it a crashed child.
	m.ExpectSpawnExitError("firecracker --no-api --config-file /run/fleet/default/3/config.json", "",
		&execx.CommandFailure{Command: "firecracker", Status: 1})
	if err := inst.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.tickOne(context.Background(), sl)
	if !sl.inErrored {
		t.Fatal("expected first errored tick to mark inErrored")
	}

	// Still within cooldown: a second tick must not reset yet.
	s.tickOne(context.Background(), sl)
	if !sl.inErrored {
		t.Fatal("expected instance to remain marked errored within cooldown")
	}

	// Simulate cooldown elapsed and expect a reset's commands.
	sl.erroredAt = time.Now().Add(-erroredCooldown - time.Second)

	m.Expect("rm -rf /run/fleet/default/3/rootfs.ext4", &execx.Result{}, nil)
	m.Expect("rm -rf /run/fleet/default/3/cache.ext4", &execx.Result{}, nil)
	m.Expect("rm -rf /run/fleet/default/3", &execx.Result{}, nil)
	m.Expect("mkdir -p /run/fleet/default/3", &execx.Result{}, nil)
	m.Expect("cp --sparse=always /rootfs.ext4 /run/fleet/default/3/rootfs.ext4", &execx.Result{}, nil)
	m.Expect("dd if=/dev/zero of=/run/fleet/default/3/cache.ext4 conv=sparse bs=1M count=0", &execx.Result{}, nil)
	m.Expect("mkfs.ext4 /run/fleet/default/3/cache.ext4", &execx.Result{}, nil)
	m.Expect("ip link del tap3", &execx.Result{}, nil)
	m.Expect("ip tuntap add dev tap3 mode tap", &execx.Result{}, nil)
	m.Expect("ip addr add 172.16.3.1/30 dev tap3", &execx.Result{}, nil)
	m.Expect("ip link set dev tap3 up", &execx.Result{}, nil)
	m.Expect("iptables -I FORWARD 1 -i tap3 -o eth0 -j ACCEPT", &execx.Result{}, nil)

	s.tickOne(context.Background(), sl)
	if sl.inErrored {
		t.Fatal("expected the instance to be reset out of errored after cooldown")
	}
}

// TestTickOne_NotStartedStarts exercises the normal start-from-rest path.
func TestTickOne_NotStartedStarts(t *testing.T) {
	m := execx.NewMock()
	role := &config.Role{Name: "default"}
	alloc := netaddr.NewAllocation(m, "eth0", 9)
	github := ghapi.New("acme", "fake-pat")
	// SetupRun writes config.json for real, so the work directory must
	// exist on disk (the mocked executor never runs Setup's mkdir).
	runPath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(runPath, "default", "9"), 0o755); err != nil {
		t.Fatalf("creating work dir: %v", err)
	}
	inst := New(m, runPath, role, alloc, 9, github)

	inst.github.BaseURL = newTokenServer(t)

	m.ExpectSpawn("firecracker --no-api --config-file "+filepath.Join(runPath, "default", "9", "config.json"), "", nil)

	s := &Supervisor{exec: m, log: discardLogger()}
	sl := &slot{inst: inst}
	s.tickOne(context.Background(), sl)

	if got := inst.State(context.Background()); got != NotRunning {
		t.Fatalf("State() after start = %s, want NotRunning (mock exits clean immediately)", got)
	}
}
