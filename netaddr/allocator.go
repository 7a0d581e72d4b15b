package netaddr

// NoFreeIpsError is returned when every slot in [0, MaxSlots) is taken.
type NoFreeIpsError struct{}

func (e *NoFreeIpsError) Error() string { return "no free IPs" }

// Allocator yields the lowest free slot in [0, MaxSlots) on each call to
// Allocate, and is safe to call Deallocate to free a previously-allocated
// slot. It holds a mapping of slot -> owner tag purely for
// bookkeeping/diagnostics; the owner tag is not otherwise interpreted.
type Allocator struct {
	owners map[uint8]string
}

// NewAllocator returns an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{owners: map[uint8]string{}}
}

// Allocate reserves and returns the lowest free slot, tagging it with
// owner for diagnostics.
func (a *Allocator) Allocate(owner string) (uint8, error) {
	for slot := uint8(0); int(slot) < MaxSlots; slot++ {
		if _, taken := a.owners[slot]; !taken {
			a.owners[slot] = owner
			return slot, nil
		}
	}
	return 0, &NoFreeIpsError{}
}

// Deallocate frees slot, if held.
func (a *Allocator) Deallocate(slot uint8) {
	delete(a.owners, slot)
}

// Held reports the current slot -> owner mapping. Intended for tests and
// diagnostics.
func (a *Allocator) Held() map[uint8]string {
	ret := make(map[uint8]string, len(a.owners))
	for k, v := range a.owners {
		ret[k] = v
	}
	return ret
}
