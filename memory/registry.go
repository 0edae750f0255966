package memory

import (
	"sort"

	"github.com/wippyai/wasm-bridge/errors"
)

// Entry maps a foreign address range to the view that backs it. Shadow is
// set when the range is a call-scoped copy of the host memory in Target.
type Entry struct {
	Target   *View
	Shadow   *View
	Address  uint32
	Length   uint32
	Align    int
	Writable bool
}

func (e *Entry) end() uint64 { return uint64(e.Address) + uint64(e.Length) }

// Registry is the address-sorted list of registered ranges. Ranges never overlap.
type Registry struct {
	entries []*Entry
}

// Register inserts e. Zero-length entries are not recorded.
func (r *Registry) Register(e *Entry) error {
	if e.Shadow != nil && e.Target != nil && e.Shadow.Len() != e.Target.Len() {
		return errors.Internal(errors.PhaseMemory, "shadow length %d differs from target length %d", e.Shadow.Len(), e.Target.Len())
	}
	if e.Length == 0 {
		return nil
	}
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Address >= e.Address })
	if i > 0 && r.entries[i-1].end() > uint64(e.Address) {
		return errors.Internal(errors.PhaseMemory, "range %#x+%d overlaps %#x+%d", e.Address, e.Length, r.entries[i-1].Address, r.entries[i-1].Length)
	}
	if i < len(r.entries) && e.end() > uint64(r.entries[i].Address) {
		return errors.Internal(errors.PhaseMemory, "range %#x+%d overlaps %#x+%d", e.Address, e.Length, r.entries[i].Address, r.entries[i].Length)
	}
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	return nil
}

// Unregister removes the entry starting at address.
func (r *Registry) Unregister(address uint32) *Entry {
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Address >= address })
	if i == len(r.entries) || r.entries[i].Address != address {
		return nil
	}
	e := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return e
}

// Find returns the entry whose range contains [address, address+length).
func (r *Registry) Find(address, length uint32) *Entry {
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Address > address })
	if i == 0 {
		return nil
	}
	e := r.entries[i-1]
	if uint64(address)+uint64(length) <= e.end() && (length > 0 || uint64(address) < e.end()) {
		return e
	}
	return nil
}

// Entries returns the registered entries in address order.
func (r *Registry) Entries() []*Entry { return r.entries }

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Reset drops all entries.
func (r *Registry) Reset() { r.entries = r.entries[:0] }
