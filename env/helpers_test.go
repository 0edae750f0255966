package env

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/memtest"
	"github.com/wippyai/wasm-bridge/structure"
)

// thunkFunc stands in for one exported function of the module.
type thunkFunc func(ctx context.Context, args uint32) (uint32, error)

type fakeRunner struct {
	fns   map[uint32]thunkFunc
	calls int
}

func (r *fakeRunner) RunThunk(ctx context.Context, thunk, fn, args uint32) (uint32, error) {
	r.calls++
	f, ok := r.fns[fn]
	if !ok {
		return 0, fmt.Errorf("no function %d", fn)
	}
	return f(ctx, args)
}

type fixture struct {
	t      *testing.T
	mem    *memtest.Memory
	alloc  *memtest.Allocator
	runner *fakeRunner
	env    *Environment
	reg    *structure.Registry

	i32   *structure.Structure
	point *structure.Structure
	ptr   *structure.Structure
}

func newFixture(t *testing.T) *fixture {
	mem := memtest.NewMemory(1 << 16)
	alloc := memtest.NewAllocator(mem)
	runner := &fakeRunner{fns: make(map[uint32]thunkFunc)}
	e := New(mem, alloc, runner)
	t.Cleanup(func() { _ = e.Close() })
	f := &fixture{t: t, mem: mem, alloc: alloc, runner: runner, env: e, reg: e.Registry()}

	f.i32 = f.begin(structure.Descriptor{Name: "i32", Kind: structure.KindPrimitive, ByteSize: 4, Align: 4})
	f.member(f.i32, storage("", structure.MemberInt, 0, 32))
	f.end(f.i32)

	f.point = f.begin(structure.Descriptor{Name: "Point", Kind: structure.KindStruct, ByteSize: 8, Align: 4})
	f.member(f.point, storage("x", structure.MemberInt, 0, 32))
	f.member(f.point, storage("y", structure.MemberInt, 32, 32))
	f.end(f.point)

	f.ptr = f.begin(structure.Descriptor{Name: "*Point", Kind: structure.KindPointer, ByteSize: 4, Align: 4})
	f.member(f.ptr, structure.MemberDescriptor{Name: "*", Type: structure.MemberObject, BitSize: 32, ByteSize: 4, Slot: 0, Structure: f.point.Handle()})
	f.end(f.ptr)
	return f
}

func (f *fixture) begin(d structure.Descriptor) *structure.Structure {
	f.t.Helper()
	s, err := f.reg.BeginStructure(d)
	if err != nil {
		f.t.Fatalf("BeginStructure(%s): %v", d.Name, err)
	}
	return s
}

func (f *fixture) member(s *structure.Structure, md structure.MemberDescriptor) {
	f.t.Helper()
	if err := f.reg.AttachMember(s, md, false); err != nil {
		f.t.Fatalf("AttachMember(%s.%s): %v", s, md.Name, err)
	}
}

func (f *fixture) end(s *structure.Structure) *structure.Structure {
	f.t.Helper()
	if err := f.reg.EndStructure(s); err != nil {
		f.t.Fatalf("EndStructure(%s): %v", s, err)
	}
	return s
}

func (f *fixture) finalize() {
	f.t.Helper()
	if err := f.reg.FinalizeAll(); err != nil {
		f.t.Fatalf("FinalizeAll: %v", err)
	}
}

func storage(name string, t structure.MemberType, bitOffset, bits int) structure.MemberDescriptor {
	return structure.MemberDescriptor{Name: name, Type: t, BitOffset: bitOffset, BitSize: bits, ByteSize: (bits + 7) / 8, Slot: -1}
}

func object(name string, st *structure.Structure, bitOffset, slot int) structure.MemberDescriptor {
	return structure.MemberDescriptor{
		Name:      name,
		Type:      structure.MemberObject,
		BitOffset: bitOffset,
		BitSize:   st.ByteSize * 8,
		ByteSize:  st.ByteSize,
		Slot:      slot,
		Structure: st.Handle(),
	}
}

// special defines a purpose structure: a u32 handle followed by the type of
// the value it delivers, if any.
func (f *fixture) special(name string, p structure.Purpose, payload *structure.Structure) *structure.Structure {
	s := f.begin(structure.Descriptor{Name: name, Kind: structure.KindStruct, ByteSize: 4, Align: 4, Purpose: p})
	f.member(s, storage("handle", structure.MemberUint, 0, 32))
	if payload != nil {
		f.member(s, structure.MemberDescriptor{Name: "payload", Type: structure.MemberTypeRef, Slot: -1, Structure: payload.Handle()})
	}
	return f.end(s)
}

// function defines an argument struct with the given members and a
// function structure over it, and registers impl under index.
func (f *fixture) function(name string, size int, index uint32, impl thunkFunc, members ...structure.MemberDescriptor) *structure.Structure {
	as := f.begin(structure.Descriptor{Name: name + ".args", Kind: structure.KindArgStruct, ByteSize: size, Align: 4})
	for _, md := range members {
		f.member(as, md)
	}
	f.end(as)
	fn := f.begin(structure.Descriptor{Name: name, Kind: structure.KindFunction, ByteSize: 8, Align: 4})
	f.member(fn, structure.MemberDescriptor{Name: "args", Type: structure.MemberObject, Slot: -1, Structure: as.Handle()})
	f.end(fn)
	f.runner.fns[index] = impl
	return fn
}

// fn returns a function object calling index through thunk 1.
func (f *fixture) fn(s *structure.Structure, index uint32) *structure.Object {
	f.t.Helper()
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], 1)
	binary.LittleEndian.PutUint32(b[4:], index)
	obj, err := s.Wrap(f.env.Views().HostView(b), false)
	if err != nil {
		f.t.Fatalf("Wrap(%s): %v", s, err)
	}
	return obj
}

func (f *fixture) u32(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(f.mem.Data[addr:])
}

func (f *fixture) putU32(addr, v uint32) {
	binary.LittleEndian.PutUint32(f.mem.Data[addr:], v)
}

// block allocates n zeroed bytes of foreign memory outside the bridge.
func (f *fixture) block(n uint32) uint32 {
	f.t.Helper()
	addr, err := f.alloc.Alloc(n, 4)
	if err != nil {
		f.t.Fatal(err)
	}
	clear(f.mem.Data[addr : addr+n])
	return addr
}

func wantKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := errors.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, got, err)
	}
}
