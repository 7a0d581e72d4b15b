package netaddr

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/ghrunners/fleet/execx"
)

// Allocation is the per-slot tuple (interface, host_ip, guest_ip,
// guest_mac, tap_name) derived from a slot index in [0, MaxSlots).
type Allocation struct {
	Interface string
	HostIP    net.IP
	GuestIP   net.IP
	GuestMAC  string
	TapName   string

	exec execx.Executor
}

// NewAllocation derives the full tuple for iface/slot. It does not touch
// the host's network state; call Setup for that.
func NewAllocation(ex execx.Executor, iface string, slot uint8) *Allocation {
	hostIP := net.IPv4(172, 16, slot, 1)
	guestIP := net.IPv4(172, 16, slot, 2)
	return &Allocation{
		Interface: iface,
		HostIP:    hostIP,
		GuestIP:   guestIP,
		GuestMAC:  IPToMAC(guestIP),
		TapName:   fmt.Sprintf("tap%d", slot),
		exec:      ex,
	}
}

// Setup applies the tap device, addressing, and forwarding rule for this
// allocation. Every step's failure is swallowed here by design (nothing
// is logged, and Setup always returns nil): a previously-terminated
// supervisor may have left state behind, and re-applying it is benign
// (spec.md §4.2, §9).
func (a *Allocation) Setup(ctx context.Context) error {
	// Delete any existing tap with the same name.
	_, _ = a.exec.Exec(ctx, execx.New("ip", "link", "del", a.TapName))

	// Create the tap device.
	_, _ = a.exec.Exec(ctx, execx.New("ip", "tuntap", "add", "dev", a.TapName, "mode", "tap"))

	// Assign host_ip/30 to it.
	_, _ = a.exec.Exec(ctx, execx.New("ip", "addr", "add",
		fmt.Sprintf("%s/%d", a.HostIP, NetworkMaskBits), "dev", a.TapName))

	// Bring it up.
	_, _ = a.exec.Exec(ctx, execx.New("ip", "link", "set", "dev", a.TapName, "up"))

	// Prepend a FORWARD ACCEPT rule from this tap to the uplink interface.
	_, _ = a.exec.Exec(ctx, execx.New("iptables", "-I", "FORWARD", "1",
		"-i", a.TapName, "-o", a.Interface, "-j", "ACCEPT"))

	return nil
}

// Probe reports whether the tap device exists and is up, by parsing
// `ip -j link show <tap>`. This is an improvement over blindly swallowing
// Setup's errors (spec.md §9): callers that want a post-condition check
// can use this instead of trusting the best-effort Setup call silently.
func (a *Allocation) Probe(ctx context.Context) (bool, error) {
	res, err := a.exec.Exec(ctx, execx.New("ip", "-j", "link", "show", a.TapName))
	if err != nil {
		return false, nil //nolint:nilerr // a missing link is "not up", not an error
	}
	var links []struct {
		Flags []string `json:"flags"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &links); err != nil {
		return false, fmt.Errorf("netaddr: parsing ip link JSON for %s: %w", a.TapName, err)
	}
	for _, l := range links {
		for _, flag := range l.Flags {
			if flag == "UP" {
				return true, nil
			}
		}
	}
	return false, nil
}
