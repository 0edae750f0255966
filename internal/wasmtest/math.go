package wasmtest

import (
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wasm-bridge/structure"
)

// Number of structures Math describes.
const MathStructures = 8

// Math assembles a bridge module describing
//
//	struct Math {
//	    fn add(a: i32, b: i32) i32   // thunk 0, fn 0
//	    fn ping(p: Promise(void))    // calls back through the promise handle
//	    fn fail(a: i32, b: i32) i32  // returns status 7
//	}
//
// with a bump allocator whose heap pointer lives at address 8.
func Math() ([]byte, error) {
	m := New(1)
	begin := m.Import("bridge", "begin_structure", 2, 1)
	member := m.Import("bridge", "attach_member", 4, 0)
	end := m.Import("bridge", "end_structure", 1, 0)
	slot := m.Import("bridge", "attach_template_slot", 6, 0)
	callHost := m.Import("bridge", "call_host", 2, 1)

	next := uint32(256)
	var encodeErr error
	blob := func(v any) (uint32, int32) {
		b, err := msgpack.Marshal(v)
		if err != nil {
			encodeErr = err
			return 0, 0
		}
		addr := next
		m.Data(addr, b)
		next += uint32(len(b)+7) &^ 7
		return addr, int32(len(b))
	}
	body := NewCode()
	handle := int32(0)
	define := func(d structure.Descriptor, members ...structure.MemberDescriptor) int32 {
		handle++
		addr, n := blob(d)
		body.I32Const(int32(addr)).I32Const(n).Call(begin).Drop()
		for _, md := range members {
			addr, n := blob(md)
			body.I32Const(handle).I32Const(int32(addr)).I32Const(n).I32Const(0).Call(member)
		}
		return handle
	}
	storage := func(name string, typ structure.MemberType, bitOffset, bits int) structure.MemberDescriptor {
		return structure.MemberDescriptor{Name: name, Type: typ, BitOffset: bitOffset, BitSize: bits, ByteSize: bits / 8, Slot: -1}
	}
	closeAll := func(handles ...int32) {
		for _, h := range handles {
			body.I32Const(h).Call(end)
		}
	}

	i32 := define(structure.Descriptor{Name: "i32", Kind: structure.KindPrimitive, ByteSize: 4, Align: 4},
		storage("", structure.MemberInt, 0, 32))
	addArgs := define(structure.Descriptor{Name: "add.args", Kind: structure.KindArgStruct, ByteSize: 12, Align: 4},
		storage("retval", structure.MemberInt, 0, 32),
		storage("a", structure.MemberInt, 32, 32),
		storage("b", structure.MemberInt, 64, 32))
	add := define(structure.Descriptor{Name: "add", Kind: structure.KindFunction, ByteSize: 8, Align: 4},
		structure.MemberDescriptor{Name: "args", Type: structure.MemberObject, Slot: -1, Structure: uint32(addArgs)})
	promise := define(structure.Descriptor{Name: "Promise(void)", Kind: structure.KindStruct, ByteSize: 4, Align: 4, Purpose: structure.PurposePromise},
		storage("handle", structure.MemberUint, 0, 32))
	pingArgs := define(structure.Descriptor{Name: "ping.args", Kind: structure.KindArgStruct, ByteSize: 4, Align: 4},
		storage("retval", structure.MemberVoid, 0, 0),
		structure.MemberDescriptor{Name: "p", Type: structure.MemberObject, BitSize: 32, ByteSize: 4, Slot: 0, Structure: uint32(promise)})
	ping := define(structure.Descriptor{Name: "ping", Kind: structure.KindFunction, ByteSize: 8, Align: 4},
		structure.MemberDescriptor{Name: "args", Type: structure.MemberObject, Slot: -1, Structure: uint32(pingArgs)})
	fail := define(structure.Descriptor{Name: "fail", Kind: structure.KindFunction, ByteSize: 8, Align: 4},
		structure.MemberDescriptor{Name: "args", Type: structure.MemberObject, Slot: -1, Structure: uint32(addArgs)})
	closeAll(i32, addArgs, add, promise, pingArgs, ping, fail)

	math := define(structure.Descriptor{Name: "Math", Kind: structure.KindStruct, ByteSize: 0, Align: 1})
	for i, fn := range []struct {
		name  string
		h     int32
		index uint32
	}{{"add", add, 0}, {"ping", ping, 1}, {"fail", fail, 2}} {
		addr, n := blob(structure.MemberDescriptor{Name: fn.name, Type: structure.MemberObject, Slot: i, Structure: uint32(fn.h)})
		body.I32Const(math).I32Const(int32(addr)).I32Const(n).I32Const(1).Call(member)
		obj := make([]byte, 8)
		binary.LittleEndian.PutUint32(obj[4:], fn.index)
		m.Data(next, obj)
		body.I32Const(math).I32Const(1).I32Const(int32(i)).I32Const(fn.h).I32Const(int32(next)).I32Const(8).Call(slot)
		next += 8
	}
	closeAll(math)
	if encodeErr != nil {
		return nil, encodeErr
	}

	heap := make([]byte, 4)
	binary.LittleEndian.PutUint32(heap, 8192)
	m.Data(8, heap)

	// bridge_alloc(len, align) -> ptr
	m.Func("bridge_alloc", 2, 1, 1, NewCode().
		I32Const(8).I32Load(0).LocalGet(1).I32Add().I32Const(1).I32Sub().
		I32Const(0).LocalGet(1).I32Sub().I32And().LocalSet(2).
		I32Const(8).LocalGet(2).LocalGet(0).I32Add().I32Store(0).
		LocalGet(2))
	m.Func("bridge_free", 3, 0, 0, NewCode())
	m.Func("bridge_init", 0, 0, 0, body)
	// bridge_run_thunk(thunk, fn, args) -> status
	m.Func("bridge_run_thunk", 3, 1, 0, NewCode().
		LocalGet(1).I32Eqz().If().
		LocalGet(2).LocalGet(2).I32Load(4).LocalGet(2).I32Load(8).I32Add().I32Store(0).
		I32Const(0).Return().
		End().
		LocalGet(1).I32Const(1).I32Eq().If().
		LocalGet(2).I32Load(0).I32Const(0).Call(callHost).Return().
		End().
		I32Const(7))
	return m.Encode(), nil
}
