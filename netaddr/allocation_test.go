package netaddr

import (
	"testing"
)

func TestNewAllocation_Slot7(t *testing.T) {
	a := NewAllocation(nil, "eth0", 7)
	if got, want := a.HostIP.String(), "172.16.7.1"; got != want {
		t.Errorf("HostIP = %q, want %q", got, want)
	}
	if got, want := a.GuestIP.String(), "172.16.7.2"; got != want {
		t.Errorf("GuestIP = %q, want %q", got, want)
	}
	if got, want := a.GuestMAC, "06:00:ac:10:07:02"; got != want {
		t.Errorf("GuestMAC = %q, want %q", got, want)
	}
	if got, want := a.TapName, "tap7"; got != want {
		t.Errorf("TapName = %q, want %q", got, want)
	}
}
