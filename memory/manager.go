package memory

import (
	"runtime"
	"sync"
	"weak"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

type viewKey struct {
	buffer uint64
	offset int
	length int
}

// Manager produces views over host buffers and foreign memory. Obtaining the
// same range twice returns the same *View while the first one is reachable.
type Manager struct {
	foreign *Buffer
	views   map[viewKey]weak.Pointer[View]
	mu      sync.Mutex
}

// NewManager creates a manager for the given foreign memory. mem may be nil
// for a host-only manager.
func NewManager(mem wasmbridge.Memory) *Manager {
	m := &Manager{views: make(map[viewKey]weak.Pointer[View])}
	if mem != nil {
		m.foreign = NewForeignBuffer(mem)
	}
	return m
}

// Foreign returns the buffer over linear memory, or nil.
func (m *Manager) Foreign() *Buffer { return m.foreign }

// Obtain returns the view of length bytes at offset in buf.
func (m *Manager) Obtain(buf *Buffer, offset, length int) *View {
	key := viewKey{buffer: buf.ID(), offset: offset, length: length}
	m.mu.Lock()
	defer m.mu.Unlock()
	if wp, ok := m.views[key]; ok {
		if v := wp.Value(); v != nil {
			return v
		}
	}
	v := &View{buf: buf, offset: offset, length: length}
	m.views[key] = weak.Make(v)
	runtime.AddCleanup(v, m.forget, key)
	return v
}

func (m *Manager) forget(key viewKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wp, ok := m.views[key]; ok && wp.Value() == nil {
		delete(m.views, key)
	}
}

// HostView wraps a host slice in a fresh buffer and returns its full view.
func (m *Manager) HostView(b []byte) *View {
	return m.Obtain(NewHostBuffer(b), 0, len(b))
}

// ForeignView returns the view of length bytes at address in linear memory.
func (m *Manager) ForeignView(address, length uint32) (*View, error) {
	if m.foreign == nil {
		return nil, errors.New(errors.PhaseMemory, errors.KindForeignRequired).
			Detail("no foreign memory attached").
			Build()
	}
	if uint64(address)+uint64(length) > uint64(m.foreign.Len()) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, "", int(address)+int(length), m.foreign.Len())
	}
	return m.Obtain(m.foreign, int(address), int(length)), nil
}

// Sub returns the view of length bytes at offset inside v.
func (m *Manager) Sub(v *View, offset, length int) (*View, error) {
	if offset < 0 || length < 0 || offset+length > v.length {
		return nil, errors.OutOfBounds(errors.PhaseMemory, "", offset+length, v.length)
	}
	sub := m.Obtain(v.buf, v.offset+offset, length)
	sub.freed = v.freed
	return sub, nil
}

// Allocate returns length bytes aligned to align. With a nil allocator the
// memory is a host slice and the alignment is only recorded on the view.
func (m *Manager) Allocate(length, align int, alloc Allocator) (*View, error) {
	if alloc != nil {
		v, err := alloc.Alloc(length, align)
		if err != nil {
			return nil, errors.AllocationFailed(errors.PhaseMemory, length, align, err)
		}
		return v, nil
	}
	v := m.HostView(make([]byte, length))
	v.Align = align
	return v, nil
}

// Free releases v through alloc and invalidates it. Freeing twice is a no-op.
func (m *Manager) Free(v *View, alloc Allocator) error {
	if v.freed {
		return nil
	}
	if alloc != nil {
		if err := alloc.Free(v); err != nil {
			return err
		}
	}
	v.freed = true
	m.mu.Lock()
	delete(m.views, viewKey{buffer: v.buf.ID(), offset: v.offset, length: v.length})
	m.mu.Unlock()
	return nil
}
