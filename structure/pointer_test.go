package structure

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
)

func TestPointerAutoConstruct(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	ptr := b.pointer("*Point", point, 0)
	b.finalize()

	p, err := ptr.New(map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatal(err)
	}
	target, err := p.Target()
	if err != nil || target == nil {
		t.Fatalf("Target() = %v, %v", target, err)
	}
	if again, _ := p.Target(); again != target {
		t.Error("Target() is not stable")
	}
	if v, _ := p.Get("x"); v != int64(1) {
		t.Errorf("Get through pointer = %v", v)
	}
	if err := p.Set("y", 20); err != nil {
		t.Fatal(err)
	}
	if v, _ := target.Get("y"); v != int64(20) {
		t.Errorf("Set through pointer did not reach the target: %v", v)
	}
	got, _ := p.Value()
	if want := map[string]any{"x": int64(1), "y": int64(20)}; !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
	if addr, _, _ := p.Address(); addr != 0 {
		t.Errorf("host target must not have an address yet, got %#x", addr)
	}
}

func TestPointerRules(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	mut := b.pointer("*Point", point, 0)
	cst := b.pointer("*const Point", point, FlagConst)
	nullable := b.pointer("[*c]Point", point, FlagNullable)
	b.finalize()

	t.Run("null", func(t *testing.T) {
		_, err := mut.New(nil)
		wantKind(t, err, errors.KindNullPointer)
		p, err := nullable.New(nil)
		if err != nil {
			t.Fatal(err)
		}
		if target, err := p.Target(); err != nil || target != nil {
			t.Errorf("Target() = %v, %v", target, err)
		}
		if v, _ := p.Value(); v != nil {
			t.Errorf("Value() = %v", v)
		}
	})
	t.Run("const", func(t *testing.T) {
		c, err := cst.New(map[string]any{"x": 1})
		if err != nil {
			t.Fatal(err)
		}
		_, err = mut.New(c)
		wantKind(t, err, errors.KindConstCast)
		wantKind(t, c.Set("x", 2), errors.KindReadOnly)

		m, err := mut.New(map[string]any{"x": 3})
		if err != nil {
			t.Fatal(err)
		}
		c2, err := cst.New(m)
		if err != nil {
			t.Fatal(err)
		}
		mt, _ := m.Target()
		ct, _ := c2.Target()
		if mt != ct {
			t.Error("assigning a pointer must share its target")
		}
	})
	t.Run("existing target", func(t *testing.T) {
		pt, err := point.New(map[string]any{"x": 4})
		if err != nil {
			t.Fatal(err)
		}
		p, err := mut.New(pt)
		if err != nil {
			t.Fatal(err)
		}
		if target, _ := p.Target(); target != pt {
			t.Error("pointer to an existing object must reference it")
		}
	})
	t.Run("freed target", func(t *testing.T) {
		pt, err := point.New(map[string]any{"x": 4})
		if err != nil {
			t.Fatal(err)
		}
		if err := point.views().Free(pt.View(), nil); err != nil {
			t.Fatal(err)
		}
		_, err = mut.New(pt)
		wantKind(t, err, errors.KindFreedMemory)
	})
}

func TestPointerForeignTarget(t *testing.T) {
	rt := newForeignRuntime()
	b := newBuilderOn(t, rt)
	point := b.point()
	ptr := b.pointer("*Point", point, 0)
	opaque := b.end(b.begin(Descriptor{Name: "Handle", Kind: KindOpaque, Align: 1}))
	handlePtr := b.pointer("*Handle", opaque, 0)
	b.finalize()

	binary.LittleEndian.PutUint32(rt.mem.Data[2048:], 7)
	binary.LittleEndian.PutUint32(rt.mem.Data[2052:], 9)
	binary.LittleEndian.PutUint32(rt.mem.Data[4096:], 2048)

	view, err := rt.views.ForeignView(4096, 4)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ptr.Wrap(view, true)
	if err != nil {
		t.Fatal(err)
	}
	target, err := p.Target()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := target.Get("x"); v != int64(7) {
		t.Errorf("x = %v", v)
	}
	if addr, length, ok := p.LastAddress(); !ok || addr != 2048 || length != 1 {
		t.Errorf("LastAddress() = %d, %d, %v", addr, length, ok)
	}

	// A pointer to a foreign object stores its address immediately.
	obj, err := point.New(map[string]any{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	q, err := ptr.New(obj)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := obj.View().Address()
	if addr, _, _ := q.Address(); addr != want {
		t.Errorf("Address() = %#x, want %#x", addr, want)
	}

	hostPoint, err := point.New(map[string]any{"x": 1}, InHostMemory())
	if err != nil {
		t.Fatal(err)
	}
	if hostPoint.View().Foreign() {
		t.Fatal("InHostMemory allocated foreign memory")
	}
	hostHandle, err := opaque.Wrap(rt.views.HostView(make([]byte, 4)), true)
	if err != nil {
		t.Fatal(err)
	}
	_, err = handlePtr.New(hostHandle)
	wantKind(t, err, errors.KindForeignRequired)
}

func TestSlicePointer(t *testing.T) {
	rt := newForeignRuntime()
	b := newBuilderOn(t, rt)
	slice := b.begin(Descriptor{Name: "[_]const u8", Kind: KindSlice, Align: 1, Flags: FlagString})
	b.member(slice, storage("", MemberUint, 0, 8))
	b.end(slice)
	ptr := b.pointer("[]const u8", slice, FlagMultiple|FlagHasLength|FlagConst)
	cstr := b.begin(Descriptor{Name: "[:0]u8", Kind: KindSlice, Align: 1, Flags: FlagString | FlagSentinel})
	b.member(cstr, storage("", MemberUint, 0, 8))
	b.template(cstr, []byte{0})
	b.end(cstr)
	many := b.pointer("[*:0]u8", cstr, FlagMultiple)
	b.finalize()

	p, err := ptr.New("bridge")
	if err != nil {
		t.Fatal(err)
	}
	addr, length, err := p.Address()
	if err != nil {
		t.Fatal(err)
	}
	if addr == 0 || length != 6 {
		t.Errorf("Address() = %#x, %d", addr, length)
	}
	if v, _ := p.Value(); v != "bridge" {
		t.Errorf("Value() = %v", v)
	}

	copy(rt.mem.Data[3000:], "zig\x00")
	binary.LittleEndian.PutUint32(rt.mem.Data[3100:], 3000)
	view, _ := rt.views.ForeignView(3100, 4)
	m, err := many.Wrap(view, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, n, _ := m.Address(); n != 3 {
		t.Errorf("sentinel scan found %d elements, want 3", n)
	}
	if v, _ := m.Value(); v != "zig" {
		t.Errorf("Value() = %v", v)
	}
}

func TestVisitPointers(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	ptr := b.pointer("?*Point", point, FlagNullable)
	pair := b.begin(Descriptor{Name: "Pair", Kind: KindStruct, ByteSize: 12, Align: 4})
	b.member(pair, object("first", ptr, 0, 0))
	b.member(pair, object("second", ptr, 32, 1))
	b.member(pair, storage("count", MemberUint, 64, 32))
	b.end(pair)
	opt := b.begin(Descriptor{Name: "?Pair", Kind: KindOptional, ByteSize: 16, Align: 4})
	b.member(opt, object("value", pair, 0, 0))
	b.member(opt, MemberDescriptor{Name: "present", Type: MemberBool, BitOffset: 96, BitSize: 1, ByteSize: 1, Slot: -1})
	b.end(opt)
	b.finalize()

	obj, err := pair.New(map[string]any{
		"first":  map[string]any{"x": 1},
		"second": nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	var seen []*Object
	collect := func(p *Object, active bool) error {
		seen = append(seen, p)
		return nil
	}
	if err := obj.VisitPointers(collect, VisitOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Fatalf("visited %d pointers, want 2", len(seen))
	}

	empty, err := opt.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	var inactive int
	err = empty.VisitPointers(func(p *Object, active bool) error {
		if !active {
			inactive++
		}
		return nil
	}, VisitOptions{Vivificate: true})
	if err != nil {
		t.Fatal(err)
	}
	if inactive != 2 {
		t.Errorf("pointers of an empty optional: %d inactive, want 2", inactive)
	}
	seen = seen[:0]
	if err := empty.VisitPointers(collect, VisitOptions{IgnoreInactive: true}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 0 {
		t.Errorf("IgnoreInactive visited %d pointers", len(seen))
	}
}
