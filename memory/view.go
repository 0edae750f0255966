package memory

import (
	"fortio.org/safecast"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
)

// View is a bounded window over a Buffer. Views are obtained through a
// Manager so that the same range always yields the same *View.
type View struct {
	buf    *Buffer
	cached map[any]any
	offset int
	length int
	// Align is the alignment the memory was allocated with, 0 if unknown.
	Align int
	freed bool
}

// Buffer returns the underlying buffer.
func (v *View) Buffer() *Buffer { return v.buf }

// Offset returns the byte offset into the buffer.
func (v *View) Offset() int { return v.offset }

// Len returns the window length in bytes.
func (v *View) Len() int { return v.length }

// Foreign reports whether the view lies in the module's linear memory.
func (v *View) Foreign() bool { return v.buf.Foreign() }

// Freed reports whether the memory behind the view has been released.
func (v *View) Freed() bool { return v.freed }

// Address returns the foreign address of the view. ok is false for host views.
func (v *View) Address() (addr uint32, ok bool) {
	if !v.buf.Foreign() {
		return 0, false
	}
	a, err := safecast.Conv[uint32](v.offset)
	if err != nil {
		return 0, false
	}
	return a, true
}

// Bytes returns the window contents. Writes to the slice write the buffer.
func (v *View) Bytes() ([]byte, error) {
	if v.freed {
		return nil, errors.New(errors.PhaseMemory, errors.KindFreedMemory).
			Detail("access to freed memory at offset %d", v.offset).
			Build()
	}
	return v.buf.Slice(v.offset, v.length)
}

// Contains reports whether o lies entirely inside v in the same buffer.
func (v *View) Contains(o *View) bool {
	return v.buf == o.buf && o.offset >= v.offset && o.offset+o.length <= v.offset+v.length
}

// Cached returns the value stored under key, typically the object wrapping
// this view for a given structure.
func (v *View) Cached(key any) (any, bool) {
	if v.cached == nil {
		return nil, false
	}
	val, ok := v.cached[key]
	return val, ok
}

// SetCached stores val under key.
func (v *View) SetCached(key, val any) {
	if v.cached == nil {
		v.cached = make(map[any]any, 1)
	}
	v.cached[key] = val
}

// Copy copies src's bytes into v. Lengths must match.
func (v *View) Copy(src *View) error {
	if src.length != v.length {
		return errors.WrongLength("", v.length, src.length)
	}
	dst, err := v.Bytes()
	if err != nil {
		return err
	}
	b, err := src.Bytes()
	if err != nil {
		return err
	}
	accessor.Copier(v.length)(dst, b)
	return nil
}

// Reset zeroes the window.
func (v *View) Reset() error {
	b, err := v.Bytes()
	if err != nil {
		return err
	}
	accessor.Resetter(v.length)(b)
	return nil
}
