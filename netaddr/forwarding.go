package netaddr

import (
	"context"
	"log/slog"

	"github.com/ghrunners/fleet/execx"
)

// Forwarding installs the host-wide IPv4 forwarding/NAT rules that every
// per-slot Allocation's tap traffic rides on.
type Forwarding struct {
	Interface string
	exec      execx.Executor
}

// NewForwarding returns a Forwarding helper for the given uplink interface.
func NewForwarding(ex execx.Executor, iface string) *Forwarding {
	return &Forwarding{Interface: iface, exec: ex}
}

// Setup is idempotent: it enables IPv4 forwarding, installs a MASQUERADE
// rule on POSTROUTING for Interface, and prepends a RELATED,ESTABLISHED
// ACCEPT rule to FORWARD. Failures are logged here but not propagated:
// the rule may already exist from a previous run.
func (f *Forwarding) Setup(ctx context.Context) error {
	for _, cmd := range []*execx.Cmd{
		execx.New("sh", "-c", "echo 1 > /proc/sys/net/ipv4/ip_forward"),
		execx.New("iptables", "-t", "nat", "-A", "POSTROUTING",
			"-o", f.Interface, "-j", "MASQUERADE"),
		execx.New("iptables", "-I", "FORWARD", "1",
			"-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"),
	} {
		if _, err := f.exec.Exec(ctx, cmd); err != nil {
			slog.WarnContext(ctx, "forwarding setup step failed", "command", cmd.String(), "err", err)
		}
	}

	return nil
}
