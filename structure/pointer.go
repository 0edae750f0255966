package structure

import (
	"bytes"

	"fortio.org/safecast"

	"github.com/wippyai/wasm-bridge/accessor"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// Pointers hold a 32-bit address at offset 0 and, for slice pointers, a
// 32-bit element count at offset 4. Members[0] names the target structure;
// its object is cached in slot 0.

var (
	addressField  = accessor.Field{Kind: accessor.KindUint, BitSize: 32}
	addressGetter accessor.GetFunc
	addressSetter accessor.SetFunc
)

func init() {
	var err error
	if addressGetter, err = accessor.Getter(addressField); err != nil {
		panic(err)
	}
	if addressSetter, err = accessor.Setter(addressField); err != nil {
		panic(err)
	}
}

func definePointer(r *Registry, s *Structure) (*behavior, error) {
	if len(s.Members) == 0 || s.Members[0].Type != MemberObject || s.Members[0].Structure == nil {
		return nil, shapeError(s, "pointer without a target structure")
	}
	want := 4
	if s.Flags.Has(FlagHasLength) {
		want = 8
	}
	if s.ByteSize < want {
		return nil, shapeError(s, "pointer of %d bytes, need %d", s.ByteSize, want)
	}
	target := s.Members[0].Structure
	if s.Flags.Has(FlagMultiple) && !target.arrayLike() {
		return nil, shapeError(s, "many-pointer target %s is not a slice", target)
	}
	return &behavior{
		init: func(o *Object, v any) error {
			if ok, err := initCompatible(o, v); ok {
				return err
			}
			return o.SetTarget(v)
		},
		value: func(o *Object, seen map[*Object]bool) (any, error) {
			t, err := o.Target()
			if err != nil || t == nil {
				return nil, err
			}
			if seen[t] {
				return t, nil
			}
			seen[t] = true
			defer delete(seen, t)
			return t.valueOf(seen)
		},
		visit: func(o *Object, fn VisitFunc, opts VisitOptions, active bool) error {
			if !opts.Dereference {
				return nil
			}
			t := o.CachedTarget()
			if t == nil || !t.s.HasPointer() || t.s.behavior.visit == nil {
				return nil
			}
			return t.s.behavior.visit(t, fn, opts, active)
		},
	}, nil
}

// TargetStructure returns the structure a pointer refers to.
func (s *Structure) TargetStructure() *Structure {
	if s.Kind != KindPointer {
		return nil
	}
	return s.Members[0].Structure
}

// KnownLength reports whether pointer memory determines the element count:
// single-item pointers, pointers that store a length, and many-item
// pointers to sentinel-terminated targets. A plain many-item pointer only
// carries an address.
func (s *Structure) KnownLength() bool {
	if s.Kind != KindPointer {
		return false
	}
	if !s.Flags.Has(FlagMultiple) || s.Flags.Has(FlagHasLength) {
		return true
	}
	_, ok := s.TargetStructure().sentinel()
	return ok
}

// Address reads the address and element count stored in a pointer. The
// count is 1 for single-item pointers and for many-item pointers without a
// known length.
func (o *Object) Address() (addr, length uint32, err error) {
	b, err := o.view.Bytes()
	if err != nil {
		return 0, 0, err
	}
	addr = uint32(addressGetter(b, 0, o.little()).(uint64))
	length = 1
	if o.s.Flags.Has(FlagHasLength) {
		length = uint32(addressGetter(b, 4, o.little()).(uint64))
	} else if o.s.Flags.Has(FlagMultiple) && addr != 0 {
		n, err := o.scanSentinel(addr)
		if err != nil {
			return 0, 0, err
		}
		length = n
	}
	return addr, length, nil
}

// SetAddress stores addr and length in pointer memory and records them as
// last seen.
func (o *Object) SetAddress(addr, length uint32) error {
	b, err := o.view.Bytes()
	if err != nil {
		return err
	}
	if err := addressSetter(b, 0, uint64(addr), o.little()); err != nil {
		return err
	}
	if o.s.Flags.Has(FlagHasLength) {
		if err := addressSetter(b, 4, uint64(length), o.little()); err != nil {
			return err
		}
	}
	o.lastAddr, o.lastLen, o.hasLast = addr, length, true
	return nil
}

// LastAddress returns the address and length last stored or observed.
func (o *Object) LastAddress() (addr, length uint32, ok bool) {
	return o.lastAddr, o.lastLen, o.hasLast
}

// CachedTarget returns the target without resolving pointer memory.
func (o *Object) CachedTarget() *Object {
	return o.slots[0]
}

// Retarget replaces the cached target without touching pointer memory.
func (o *Object) Retarget(t *Object) {
	o.setSlot(0, t)
}

// Target returns the object the pointer refers to, or nil for a null
// pointer. The target is resolved from pointer memory on first use.
func (o *Object) Target() (*Object, error) {
	if o.s.Kind != KindPointer {
		return nil, errors.Unsupported(errors.PhaseAccess, o.s.Kind.String()+" is not a pointer")
	}
	if t, ok := o.slots[0]; ok {
		if t != nil && t.view.Freed() {
			return nil, errors.New(errors.PhaseAccess, errors.KindFreedMemory).
				Structure(o.s.String()).
				Detail("target was freed").
				Build()
		}
		return t, nil
	}
	addr, length, err := o.Address()
	if err != nil {
		return nil, err
	}
	t, err := o.Resolve(addr, length)
	if err != nil {
		return nil, err
	}
	o.setSlot(0, t)
	o.lastAddr, o.lastLen, o.hasLast = addr, length, true
	return t, nil
}

// Resolve builds the target object for an address and element count
// through the runtime's memory lookup. Address 0 resolves to nil.
func (o *Object) Resolve(addr, length uint32) (*Object, error) {
	if addr == 0 {
		return nil, nil
	}
	target := o.s.TargetStructure()
	size := target.ByteSize
	if target.Kind == KindSlice {
		var err error
		if size, err = target.sliceBytes(int(length)); err != nil {
			return nil, annotate(err, o.s, "*")
		}
	}
	n, err := safecast.Conv[uint32](size)
	if err != nil {
		return nil, errors.Overflow(errors.PhaseAccess, size, "u32")
	}
	view, err := o.s.registry.rt.FindMemory(addr, n)
	if err != nil {
		return nil, annotate(err, o.s, "*")
	}
	return target.Wrap(view, !o.s.Flags.Has(FlagConst))
}

// TargetLength is the element count written for t: its length for slices,
// 1 otherwise.
func TargetLength(t *Object) uint32 {
	if t == nil {
		return 0
	}
	if t.s.Kind == KindSlice {
		n, err := safecast.Conv[uint32](t.Len())
		if err != nil {
			return 0
		}
		return n
	}
	return 1
}

// SetTarget points the pointer at v: another pointer, a target instance, a
// raw buffer cast to the target type, or a value a new target is built from.
func (o *Object) SetTarget(v any) error {
	s := o.s
	if o.readOnly {
		return errors.ReadOnly(s.String())
	}
	target := s.TargetStructure()
	switch x := v.(type) {
	case nil:
		if !s.Flags.Has(FlagNullable) {
			return errors.New(errors.PhaseInit, errors.KindNullPointer).
				Structure(s.String()).
				Detail("%s is not nullable", s).
				Build()
		}
		return o.point(nil)
	case *Object:
		if x.s.Kind == KindPointer && x.s.TargetStructure() == target {
			if x.s.Flags.Has(FlagConst) && !s.Flags.Has(FlagConst) {
				return constCast(s, x.s)
			}
			t, err := x.Target()
			if err != nil {
				return err
			}
			if t == nil {
				return o.SetTarget(nil)
			}
			return o.point(t)
		}
		if x.s == target {
			if x.readOnly && !s.Flags.Has(FlagConst) {
				return constCast(s, x.s)
			}
			return o.point(x)
		}
	case *memory.View, []byte:
		t, err := target.Cast(v)
		if err != nil {
			return err
		}
		return o.point(t)
	}
	t, err := target.New(v)
	if err != nil {
		return err
	}
	return o.point(t)
}

func constCast(dst, src *Structure) error {
	return errors.New(errors.PhaseInit, errors.KindConstCast).
		Structure(dst.String()).
		Detail("cannot assign const %s to %s without a cast", src, dst).
		Build()
}

// point stores t as the target. Foreign targets have their address written
// right away; host targets get one when a call assigns shadow memory.
func (o *Object) point(t *Object) error {
	if t != nil {
		if t.view.Freed() {
			return errors.New(errors.PhaseInit, errors.KindFreedMemory).
				Structure(o.s.String()).
				Detail("target was freed").
				Build()
		}
		foreignOnly := o.s.Flags.Has(FlagForeignOnly) || t.s.Flags.Has(FlagForeignOnly)
		if foreignOnly && !t.view.Foreign() {
			return errors.New(errors.PhaseInit, errors.KindForeignRequired).
				Structure(o.s.String()).
				Detail("%s must live in foreign memory", t.s).
				Build()
		}
	}
	o.setSlot(0, t)
	if t == nil {
		return o.SetAddress(0, 0)
	}
	if addr, ok := t.view.Address(); ok {
		return o.SetAddress(addr, TargetLength(t))
	}
	b, err := o.view.Bytes()
	if err != nil {
		return err
	}
	if err := addressSetter(b, 0, uint64(0), o.little()); err != nil {
		return err
	}
	if o.s.Flags.Has(FlagHasLength) {
		if err := addressSetter(b, 4, uint64(TargetLength(t)), o.little()); err != nil {
			return err
		}
	}
	o.hasLast = false
	return nil
}

// scanSentinel counts elements before the sentinel of a many-pointer
// without a stored length.
func (o *Object) scanSentinel(addr uint32) (uint32, error) {
	target := o.s.TargetStructure()
	sentinel, ok := target.sentinel()
	if !ok {
		return 1, nil
	}
	buf := o.views().Foreign()
	if buf == nil {
		return 0, errors.New(errors.PhaseMemory, errors.KindForeignRequired).
			Structure(o.s.String()).
			Detail("cannot scan for a sentinel without foreign memory").
			Build()
	}
	mem, err := buf.Slice(int(addr), buf.Len()-int(addr))
	if err != nil {
		return 0, err
	}
	size := len(sentinel)
	var n uint32
	for off := 0; off+size <= len(mem); off += size {
		if bytes.Equal(mem[off:off+size], sentinel) {
			return n, nil
		}
		n++
	}
	return 0, errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
		Structure(o.s.String()).
		Detail("no sentinel after address %#x", addr).
		Build()
}
