package guestinit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/ghrunners/fleet/execx"
	"github.com/ghrunners/fleet/netaddr"
)

const (
	resolvConf     = "nameserver 1.1.1.1\noptions use-vc\n"
	resolvConfPath = "/etc/resolv.conf"
)

// ipAddrEntry mirrors the subset of `ip -j address`'s JSON output this
// package needs: interface name and the MAC address of its first link
// entry.
type ipAddrEntry struct {
	IfName string `json:"ifname"`
	Addr   string `json:"address"`
}

// NetworkInterface is the interface this guest boots with, once its
// magic-MAC-encoded address has been decoded.
type NetworkInterface struct {
	IfName     string
	MAC        string
	OwnAddress net.IP
	HostAddr   net.IP
}

func getInterfaces(ctx context.Context, ex execx.Executor) ([]ipAddrEntry, error) {
	res, err := ex.Exec(ctx, execx.New("ip", "-j", "address"))
	if err != nil {
		return nil, fmt.Errorf("guestinit: ip -j address: %w", err)
	}
	var entries []ipAddrEntry
	if err := json.Unmarshal([]byte(res.Stdout), &entries); err != nil {
		return nil, fmt.Errorf("guestinit: parsing ip address JSON: %w", err)
	}
	return entries, nil
}

func getMagicAddress(ctx context.Context, ex execx.Executor) (*ipAddrEntry, error) {
	entries, err := getInterfaces(ctx, ex)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Addr, netaddr.MagicMACPrefix) {
			return &e, nil
		}
	}
	return nil, nil
}

// SetupNetwork discovers the NIC carrying a magic MAC, decodes its IPv4
// address from the MAC, and applies addressing, link-up, and a default
// route via the host's .1 address in the same /30. A nil interface (with
// a nil error) means no magic NIC was found, and network setup is
// skipped entirely (spec.md §5).
func SetupNetwork(ctx context.Context, ex execx.Executor) (*NetworkInterface, error) {
	magic, err := getMagicAddress(ctx, ex)
	if err != nil {
		return nil, err
	}
	if magic == nil {
		return nil, nil
	}

	ownIP, err := netaddr.MACToIP(magic.Addr)
	if err != nil {
		return nil, fmt.Errorf("guestinit: decoding IP from mac %q: %w", magic.Addr, err)
	}
	ip4 := ownIP.To4()
	hostIP := net.IPv4(ip4[0], ip4[1], ip4[2], 1)

	if _, err := ex.Exec(ctx, execx.New("ip", "addr", "add",
		fmt.Sprintf("%s/%d", ownIP, netaddr.NetworkMaskBits), "dev", magic.IfName)); err != nil {
		return nil, fmt.Errorf("guestinit: assigning address: %w", err)
	}
	if _, err := ex.Exec(ctx, execx.New("ip", "link", "set", magic.IfName, "up")); err != nil {
		return nil, fmt.Errorf("guestinit: bringing link up: %w", err)
	}
	if _, err := ex.Exec(ctx, execx.New("ip", "route", "add", "default", "via", hostIP.String())); err != nil {
		return nil, fmt.Errorf("guestinit: adding default route: %w", err)
	}

	return &NetworkInterface{
		IfName:     magic.IfName,
		MAC:        magic.Addr,
		OwnAddress: ownIP,
		HostAddr:   hostIP,
	}, nil
}

// SetupDNS writes a static resolv.conf pointing at a public resolver,
// since the guest has no DHCP-provided one.
func SetupDNS() error {
	if err := os.WriteFile(resolvConfPath, []byte(resolvConf), 0o644); err != nil {
		return fmt.Errorf("guestinit: writing %s: %w", resolvConfPath, err)
	}
	return nil
}
