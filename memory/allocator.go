package memory

import (
	"fortio.org/safecast"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Allocator hands out views. Implementations may also provide Resizer or Remapper.
type Allocator interface {
	Alloc(length, align int) (*View, error)
	Free(v *View) error
}

// Resizer grows or shrinks an allocation in place.
type Resizer interface {
	Resize(v *View, length int) bool
}

// Remapper moves an allocation to a new block of the given length.
type Remapper interface {
	Remap(v *View, length int) (*View, error)
}

// ForeignAllocator allocates views in linear memory through the module's
// exported allocator.
type ForeignAllocator struct {
	m     *Manager
	alloc wasmbridge.Allocator
}

// NewForeignAllocator adapts a module allocator to the view contract.
func NewForeignAllocator(m *Manager, alloc wasmbridge.Allocator) *ForeignAllocator {
	return &ForeignAllocator{m: m, alloc: alloc}
}

// Alloc allocates length bytes. Zero-length requests return an empty view at
// the alignment itself without calling into the module.
func (a *ForeignAllocator) Alloc(length, align int) (*View, error) {
	if align <= 0 {
		align = 1
	}
	n, err := safecast.Conv[uint32](length)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseMemory, length, align, err)
	}
	al, err := safecast.Conv[uint32](align)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseMemory, length, align, err)
	}
	if n == 0 {
		v, err := a.m.ForeignView(al, 0)
		if err != nil {
			return nil, err
		}
		v.Align = align
		return v, nil
	}
	ptr, err := a.alloc.Alloc(n, al)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseMemory, length, align, err)
	}
	if ptr == 0 {
		return nil, errors.AllocationFailed(errors.PhaseMemory, length, align, nil)
	}
	v, err := a.m.ForeignView(ptr, n)
	if err != nil {
		return nil, err
	}
	v.Align = align
	return v, nil
}

// Free returns v's block to the module.
func (a *ForeignAllocator) Free(v *View) error {
	if v.length == 0 {
		return nil
	}
	addr, ok := v.Address()
	if !ok {
		return errors.New(errors.PhaseMemory, errors.KindForeignRequired).
			Detail("cannot free host memory through the module allocator").
			Build()
	}
	align := v.Align
	if align <= 0 {
		align = 1
	}
	a.alloc.Free(addr, uint32(v.length), uint32(align))
	return nil
}
