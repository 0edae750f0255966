package memory

import (
	"sync/atomic"

	"fortio.org/safecast"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

var bufferIDs atomic.Uint64

// Buffer is a byte store a View windows into: either a host slice or the
// foreign module's linear memory.
type Buffer struct {
	host    []byte
	foreign wasmbridge.Memory
	id      uint64
}

// NewHostBuffer wraps a host-owned slice.
func NewHostBuffer(b []byte) *Buffer {
	return &Buffer{id: bufferIDs.Add(1), host: b}
}

// NewForeignBuffer wraps the foreign module's memory.
func NewForeignBuffer(mem wasmbridge.Memory) *Buffer {
	return &Buffer{id: bufferIDs.Add(1), foreign: mem}
}

// ID identifies the buffer in view cache keys.
func (b *Buffer) ID() uint64 { return b.id }

// Foreign reports whether the buffer is the module's linear memory.
func (b *Buffer) Foreign() bool { return b.foreign != nil }

// Len returns the current size in bytes. Foreign memory may grow between calls.
func (b *Buffer) Len() int {
	if b.foreign != nil {
		return int(b.foreign.Size())
	}
	return len(b.host)
}

// Slice returns length bytes at offset. For foreign memory the slice aliases
// linear memory and is only valid until the memory grows.
func (b *Buffer) Slice(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, errors.OutOfBounds(errors.PhaseMemory, "", offset, b.Len())
	}
	if b.foreign == nil {
		if offset+length > len(b.host) {
			return nil, errors.OutOfBounds(errors.PhaseMemory, "", offset+length, len(b.host))
		}
		return b.host[offset : offset+length : offset+length], nil
	}
	off, err := safecast.Conv[uint32](offset)
	if err != nil {
		return nil, errors.OutOfBounds(errors.PhaseMemory, "", offset, b.Len())
	}
	n, err := safecast.Conv[uint32](length)
	if err != nil {
		return nil, errors.OutOfBounds(errors.PhaseMemory, "", length, b.Len())
	}
	data, err := b.foreign.Read(off, n)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindOutOfBounds, err, "foreign read")
	}
	return data, nil
}
