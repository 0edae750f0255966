package structure

import (
	"bytes"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/errors"
)

func TestStructRoundTrip(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	line := b.begin(Descriptor{Name: "Line", Kind: KindStruct, ByteSize: 16, Align: 4})
	b.member(line, object("a", point, 0, 0))
	b.member(line, object("b", point, 64, 1))
	b.end(line)
	b.finalize()

	init := map[string]any{
		"a": map[string]any{"x": int64(1), "y": int64(-2)},
		"b": map[string]any{"x": int64(3), "y": int64(4)},
	}
	obj, err := line.New(init)
	if err != nil {
		t.Fatal(err)
	}
	got, err := obj.Value()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, init) {
		t.Errorf("Value() = %#v, want %#v", got, init)
	}

	raw, _ := obj.Bytes()
	want := []byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff, 3, 0, 0, 0, 4, 0, 0, 0}
	if !bytes.Equal(raw, want) {
		t.Errorf("memory = %v, want %v", raw, want)
	}

	a, err := obj.Member("a")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := obj.Member("a")
	if a != again {
		t.Error("child objects are not cached")
	}
	if err := a.Set("y", 10); err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Get("a"); v != a {
		t.Error("Get on an object member should return the child")
	}
	if raw[4] != 10 {
		t.Errorf("child write did not reach parent memory: %v", raw)
	}
}

func TestStructErrors(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	b.finalize()

	tests := []struct {
		name string
		init any
		kind errors.Kind
	}{
		{"unknown key", map[string]any{"x": 1, "z": 2}, errors.KindFieldUnknown},
		{"missing required", map[string]any{"y": 2}, errors.KindFieldMissing},
		{"overflow", map[string]any{"x": int64(1) << 40}, errors.KindOverflow},
		{"wrong type", "point", errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := point.New(tt.init)
			wantKind(t, err, tt.kind)
		})
	}

	t.Run("missing required with template", func(t *testing.T) {
		b := newBuilder(t)
		s := b.begin(Descriptor{Name: "Sized", Kind: KindStruct, ByteSize: 8, Align: 4})
		x := storage("x", MemberInt, 0, 32)
		x.Flags = MemberRequired
		b.member(s, x)
		b.member(s, storage("y", MemberInt, 32, 32))
		b.template(s, []byte{0, 0, 0, 0, 7, 0, 0, 0})
		b.end(s)
		b.finalize()

		_, err := s.New(map[string]any{"y": 1})
		wantKind(t, err, errors.KindFieldMissing)

		obj, err := s.New(map[string]any{"x": 3})
		if err != nil {
			t.Fatal(err)
		}
		got, _ := obj.Value()
		want := map[string]any{"x": int64(3), "y": int64(7)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Value() = %v, want %v", got, want)
		}
	})

	t.Run("path", func(t *testing.T) {
		obj, err := point.New(map[string]any{"x": 1})
		if err != nil {
			t.Fatal(err)
		}
		err = obj.Set("y", "seven")
		var e *errors.Error
		if !errors.As(err, &e) || len(e.Path) == 0 || e.Path[0] != "y" {
			t.Fatalf("error path = %v", err)
		}
	})
}

func TestStructTemplate(t *testing.T) {
	b := newBuilder(t)
	s := b.begin(Descriptor{Name: "Config", Kind: KindStruct, ByteSize: 4, Align: 2})
	b.member(s, storage("width", MemberUint, 0, 16))
	b.member(s, storage("height", MemberUint, 16, 16))
	b.template(s, []byte{80, 0, 25, 0})
	b.end(s)
	b.finalize()

	obj, err := s.New(map[string]any{"height": 50})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := obj.Value()
	want := map[string]any{"width": uint64(80), "height": uint64(50)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
}

func TestTuple(t *testing.T) {
	b := newBuilder(t)
	s := b.begin(Descriptor{Name: "Pair", Kind: KindStruct, ByteSize: 3, Align: 1, Flags: FlagTuple})
	b.member(s, storage("0", MemberUint, 0, 8))
	b.member(s, storage("1", MemberInt, 8, 16))
	b.end(s)
	b.finalize()

	obj, err := s.New([]any{7, -300})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := obj.Value()
	if want := []any{uint64(7), int64(-300)}; !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
	_, err = s.New([]any{1})
	wantKind(t, err, errors.KindWrongLength)
}

func taggedUnion(b *builder) *Structure {
	u := b.begin(Descriptor{Name: "Shape", Kind: KindUnion, ByteSize: 16, Align: 8, Flags: FlagSelector})
	b.member(u, storage("count", MemberInt, 0, 32))
	b.member(u, storage("ratio", MemberFloat, 0, 64))
	tag := storage("tag", MemberUint, 64, 8)
	tag.Flags = MemberSelector
	b.member(u, tag)
	return b.end(u)
}

func TestUnion(t *testing.T) {
	b := newBuilder(t)
	u := taggedUnion(b)
	bare := b.begin(Descriptor{Name: "Bare", Kind: KindUnion, ByteSize: 4, Align: 4})
	b.member(bare, storage("i", MemberInt, 0, 32))
	b.member(bare, storage("f", MemberFloat, 0, 32))
	b.end(bare)
	b.finalize()

	t.Run("multiple initializers", func(t *testing.T) {
		_, err := u.New(map[string]any{"count": 1, "ratio": 0.5})
		wantKind(t, err, errors.KindMultipleInitializers)
	})
	t.Run("missing initializer", func(t *testing.T) {
		_, err := u.New(map[string]any{})
		wantKind(t, err, errors.KindMissingInitializer)
		_, err = u.New(nil)
		wantKind(t, err, errors.KindMissingInitializer)
	})
	t.Run("selector", func(t *testing.T) {
		obj, err := u.New(map[string]any{"ratio": 1.5})
		if err != nil {
			t.Fatal(err)
		}
		got, _ := obj.Value()
		if want := map[string]any{"ratio": 1.5}; !reflect.DeepEqual(got, want) {
			t.Errorf("Value() = %v, want %v", got, want)
		}
		if tag, _ := obj.Tag(); tag != "ratio" {
			t.Errorf("Tag() = %q", tag)
		}
		raw, _ := obj.Bytes()
		if raw[8] != 1 {
			t.Errorf("selector byte = %d, want 1", raw[8])
		}
		_, err = obj.Get("count")
		wantKind(t, err, errors.KindInactiveField)

		if err := obj.Set("count", 3); err != nil {
			t.Fatal(err)
		}
		if raw[8] != 0 || raw[7] != 0 {
			t.Errorf("switching fields must clear the payload: %v", raw)
		}
		if v, _ := obj.Get("count"); v != int64(3) {
			t.Errorf("count = %v", v)
		}
		if _, err := obj.Get("tag"); errors.KindOf(err) != errors.KindFieldUnknown {
			t.Errorf("selector must not be accessible, got %v", err)
		}
	})
	t.Run("untagged", func(t *testing.T) {
		obj, err := bare.New(map[string]any{"f": 2.0})
		if err != nil {
			t.Fatal(err)
		}
		_, err = obj.Get("i")
		wantKind(t, err, errors.KindInactiveField)
		got, _ := obj.Value()
		if want := map[string]any{"f": 2.0}; !reflect.DeepEqual(got, want) {
			t.Errorf("Value() = %v, want %v", got, want)
		}
	})
}

func colorEnum(b *builder, flags Flags) *Structure {
	s := b.begin(Descriptor{Name: "Color", Kind: KindEnum, ByteSize: 1, Align: 1, Flags: flags})
	b.member(s, storage("", MemberUint, 0, 8))
	b.static(s, "red", 0, s, []byte{0})
	b.static(s, "green", 1, s, []byte{1})
	b.static(s, "blue", 2, s, []byte{4})
	return b.end(s)
}

func TestEnum(t *testing.T) {
	b := newBuilder(t)
	color := colorEnum(b, 0)
	b.finalize()

	if got := color.Items(); !reflect.DeepEqual(got, []string{"red", "green", "blue"}) {
		t.Errorf("Items() = %v", got)
	}
	tests := []struct {
		init any
		want string
	}{
		{"green", "green"},
		{4, "blue"},
		{uint8(0), "red"},
	}
	for _, tt := range tests {
		obj, err := color.New(tt.init)
		if err != nil {
			t.Fatalf("New(%v): %v", tt.init, err)
		}
		if got, _ := obj.Value(); got != tt.want {
			t.Errorf("New(%v).Value() = %v, want %s", tt.init, got, tt.want)
		}
	}
	for _, bad := range []any{"purple", 3, nil} {
		_, err := color.New(bad)
		wantKind(t, err, errors.KindInvalidEnum)
	}
	if v, err := color.Static("blue"); err != nil || v != "blue" {
		t.Errorf("Static(blue) = %v, %v", v, err)
	}
}

func TestOpenEnum(t *testing.T) {
	b := newBuilder(t)
	color := colorEnum(b, FlagOpenEnded)
	b.finalize()

	obj, err := color.New(9)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := obj.Value(); got != "9" {
		t.Errorf("Value() = %v, want synthesized item 9", got)
	}
	first, _ := color.itemFor(uint64(9))
	second, _ := color.itemFor(uint64(9))
	if first.Object != second.Object {
		t.Error("synthesized item is not reused")
	}
}

func TestEnumFromTaggedUnion(t *testing.T) {
	b := newBuilder(t)
	s := b.begin(Descriptor{Name: "Kind", Kind: KindEnum, ByteSize: 1, Align: 1})
	b.member(s, storage("", MemberUint, 0, 8))
	b.static(s, "count", 0, s, []byte{0})
	b.static(s, "ratio", 1, s, []byte{1})
	b.end(s)
	u := taggedUnion(b)
	b.finalize()

	shape, err := u.New(map[string]any{"ratio": 0.25})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := s.New(shape)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := obj.Value(); got != "ratio" {
		t.Errorf("Value() = %v, want ratio", got)
	}
}

func errorSet(b *builder) *Structure {
	s := b.begin(Descriptor{Name: "FileError", Kind: KindErrorSet, ByteSize: 2, Align: 2})
	b.member(s, storage("", MemberUint, 0, 16))
	b.static(s, "NotFound", 0, s, []byte{1, 0})
	b.static(s, "AccessDenied", 1, s, []byte{2, 0})
	return b.end(s)
}

func TestErrorUnion(t *testing.T) {
	b := newBuilder(t)
	set := errorSet(b)
	eu := b.begin(Descriptor{Name: "FileError!u32", Kind: KindErrorUnion, ByteSize: 8, Align: 4})
	b.member(eu, storage("value", MemberUint, 0, 32))
	code := storage("error", MemberUint, 32, 16)
	code.Structure = set.Handle()
	b.member(eu, code)
	b.end(eu)
	b.finalize()

	errs := set.Errors()
	if len(errs) != 2 || errs[0].Name != "NotFound" || errs[1].Number != 2 {
		t.Fatalf("Errors() = %v", errs)
	}
	if e, ok := b.r.ErrorByNumber(2); !ok || e.Name != "AccessDenied" {
		t.Errorf("ErrorByNumber(2) = %v", e)
	}

	obj, err := eu.New(uint32(42))
	if err != nil {
		t.Fatal(err)
	}
	if v, err := obj.Value(); err != nil || v != uint64(42) {
		t.Errorf("Value() = %v, %v", v, err)
	}

	if err := obj.Assign(errs[1]); err != nil {
		t.Fatal(err)
	}
	raw, _ := obj.Bytes()
	if !bytes.Equal(raw[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("payload not cleared: %v", raw)
	}
	_, err = obj.Value()
	var ev *ErrorValue
	if !errors.As(err, &ev) || ev.Name != "AccessDenied" {
		t.Fatalf("Value() error = %v", err)
	}
	if !errors.Is(err, errs[1]) {
		t.Error("error value does not match itself")
	}

	err = obj.Assign(int64(1) << 40)
	wantKind(t, err, errors.KindOverflow)
	if _, err := obj.Value(); !errors.Is(err, errs[1]) {
		t.Fatalf("failed assignment lost the error: %v", err)
	}

	if err := obj.Assign(7); err != nil {
		t.Fatal(err)
	}
	if v, err := obj.Value(); err != nil || v != uint64(7) {
		t.Errorf("after switching back Value() = %v, %v", v, err)
	}

	_, err = set.New("Missing")
	wantKind(t, err, errors.KindInvalidError)
	named, err := set.New("NotFound")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := named.Value(); v != errs[0] {
		t.Errorf("error set Value() = %v", v)
	}
}

func TestOptional(t *testing.T) {
	b := newBuilder(t)
	opt := b.begin(Descriptor{Name: "?i32", Kind: KindOptional, ByteSize: 8, Align: 4})
	b.member(opt, storage("value", MemberInt, 0, 32))
	b.member(opt, MemberDescriptor{Name: "present", Type: MemberBool, BitOffset: 32, BitSize: 1, ByteSize: 1, Slot: -1})
	b.end(opt)
	b.finalize()

	empty, err := opt.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := empty.Value(); v != nil {
		t.Errorf("empty optional Value() = %v", v)
	}
	full, err := opt.New(-7)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := full.Value(); v != int64(-7) {
		t.Errorf("Value() = %v", v)
	}
	if err := full.Assign(nil); err != nil {
		t.Fatal(err)
	}
	raw, _ := full.Bytes()
	if !bytes.Equal(raw, make([]byte, 8)) {
		t.Errorf("null optional memory = %v", raw)
	}
}

func TestArray(t *testing.T) {
	b := newBuilder(t)
	arr := b.begin(Descriptor{Name: "[3]u16", Kind: KindArray, ByteSize: 6, Align: 2, Length: 3})
	b.member(arr, storage("", MemberUint, 0, 16))
	b.end(arr)
	b.finalize()

	obj, err := arr.New([]int{1, 2, 0xffff})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := obj.Value()
	if want := []any{uint64(1), uint64(2), uint64(0xffff)}; !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
	if err := obj.SetAt(1, 500); err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.At(1); v != uint64(500) {
		t.Errorf("At(1) = %v", v)
	}

	_, err = arr.New([]int{1, 2})
	wantKind(t, err, errors.KindWrongLength)
	_, err = obj.At(3)
	wantKind(t, err, errors.KindOutOfBounds)
	err = obj.SetAt(0, 1<<20)
	wantKind(t, err, errors.KindOverflow)

	fromBase64, err := arr.New(map[string]any{"base64": "AQACAAMA"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := fromBase64.At(2); v != uint64(3) {
		t.Errorf("base64 element 2 = %v", v)
	}
}

func TestArrayOfStructs(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	arr := b.begin(Descriptor{Name: "[2]Point", Kind: KindArray, ByteSize: 16, Align: 4, Length: 2})
	b.member(arr, object("", point, 0, 0))
	b.end(arr)
	b.finalize()

	init := []any{
		map[string]any{"x": int64(1), "y": int64(2)},
		map[string]any{"x": int64(3), "y": int64(4)},
	}
	obj, err := arr.New(init)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := obj.Value()
	if !reflect.DeepEqual(got, init) {
		t.Errorf("Value() = %v, want %v", got, init)
	}
	second, _ := obj.At(1)
	if p, ok := second.(*Object); !ok || p.View().Offset() != 8 {
		t.Errorf("At(1) = %v", second)
	}
}

func TestStringSlices(t *testing.T) {
	b := newBuilder(t)
	u8 := b.begin(Descriptor{Name: "[:0]u8", Kind: KindSlice, Align: 1, Flags: FlagString | FlagSentinel})
	b.member(u8, storage("", MemberUint, 0, 8))
	b.template(u8, []byte{0})
	b.end(u8)
	u16 := b.begin(Descriptor{Name: "[]u16", Kind: KindSlice, Align: 2, Flags: FlagString})
	b.member(u16, storage("", MemberUint, 0, 16))
	b.end(u16)
	b.finalize()

	obj, err := u8.New("hello")
	if err != nil {
		t.Fatal(err)
	}
	if obj.Len() != 5 {
		t.Errorf("Len() = %d", obj.Len())
	}
	raw, _ := obj.Bytes()
	if !bytes.Equal(raw, []byte("hello\x00")) {
		t.Errorf("memory = %q", raw)
	}
	if v, _ := obj.Value(); v != "hello" {
		t.Errorf("Value() = %v", v)
	}

	wide, err := u16.New("héllo ✓")
	if err != nil {
		t.Fatal(err)
	}
	if wide.Len() != 7 {
		t.Errorf("Len() = %d, want 7 code units", wide.Len())
	}
	if v, _ := wide.Value(); v != "héllo ✓" {
		t.Errorf("Value() = %v", v)
	}
	raw, _ = wide.Bytes()
	if raw[2] != 0xe9 || raw[3] != 0 {
		t.Errorf("utf-16 encoding = %v", raw)
	}

	pre, err := u16.New(4)
	if err != nil {
		t.Fatal(err)
	}
	if pre.Len() != 4 || pre.View().Len() != 8 {
		t.Errorf("preallocated slice: len %d, bytes %d", pre.Len(), pre.View().Len())
	}
	_, err = u16.New([]byte{1, 2, 3})
	wantKind(t, err, errors.KindWrongLength)
}

func TestBoolVector(t *testing.T) {
	b := newBuilder(t)
	vec := b.begin(Descriptor{Name: "@Vector(10, bool)", Kind: KindVector, ByteSize: 2, Align: 2, Length: 10})
	b.member(vec, MemberDescriptor{Type: MemberBool, BitSize: 1, Slot: -1})
	b.end(vec)
	b.finalize()

	init := make([]bool, 10)
	for i := range init {
		init[i] = i%3 == 0
	}
	obj, err := vec.New(init)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := obj.Bytes()
	if raw[0] != 0x49 || raw[1] != 0x02 {
		t.Errorf("packed bits = %08b %08b", raw[0], raw[1])
	}
	for i := range init {
		if v, _ := obj.At(i); v != init[i] {
			t.Errorf("At(%d) = %v, want %v", i, v, init[i])
		}
	}
}

func TestPrimitive(t *testing.T) {
	b := newBuilder(t)
	f16 := b.begin(Descriptor{Name: "f16", Kind: KindPrimitive, ByteSize: 2, Align: 2})
	b.member(f16, storage("", MemberFloat, 0, 16))
	b.end(f16)
	i12 := b.begin(Descriptor{Name: "i12", Kind: KindPrimitive, ByteSize: 2, Align: 2})
	b.member(i12, storage("", MemberInt, 0, 12))
	b.end(i12)
	b.finalize()

	h, err := f16.New(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := h.Value(); v != 0.5 {
		t.Errorf("f16 Value() = %v", v)
	}
	n, err := i12.New(-2048)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := n.Value(); v != int64(-2048) {
		t.Errorf("i12 Value() = %v", v)
	}
	_, err = i12.New(2048)
	wantKind(t, err, errors.KindOverflow)
}

func TestIdentity(t *testing.T) {
	b := newBuilder(t)
	point := b.point()
	b.finalize()

	view := point.views().HostView(make([]byte, 8))
	a, err := point.Wrap(view, true)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := point.Wrap(view, true)
	if a != again {
		t.Error("wrapping the same view twice gave different objects")
	}
	cast, err := point.Cast(view)
	if err != nil || cast != a {
		t.Errorf("Cast(view) = %v, %v", cast, err)
	}
	_, err = point.Wrap(point.views().HostView(make([]byte, 7)), true)
	wantKind(t, err, errors.KindWrongLength)
	_, err = point.Cast([]int32{1, 2, 3})
	wantKind(t, err, errors.KindWrongLength)
	fromNumbers, err := point.Cast([]int32{5, -6})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := fromNumbers.Get("y"); v != int64(-6) {
		t.Errorf("cast y = %v", v)
	}
}

func TestForeignReadOnly(t *testing.T) {
	rt := newForeignRuntime()
	b := newBuilderOn(t, rt)
	point := b.point()
	b.finalize()

	view, err := rt.views.ForeignView(2048, 8)
	if err != nil {
		t.Fatal(err)
	}
	frozen, err := point.Wrap(view, false)
	if err != nil {
		t.Fatal(err)
	}
	if !frozen.ReadOnly() {
		t.Fatal("foreign object wrapped without writable must be read-only")
	}
	wantKind(t, frozen.Set("x", 1), errors.KindReadOnly)

	obj, err := point.New(map[string]any{"x": 5, "y": 6})
	if err != nil {
		t.Fatal(err)
	}
	if !obj.View().Foreign() {
		t.Fatal("New with a foreign allocator must allocate in linear memory")
	}
	addr, _ := obj.View().Address()
	if rt.mem.Data[addr] != 5 {
		t.Errorf("foreign memory at %d = %d", addr, rt.mem.Data[addr])
	}
	if err := rt.views.Free(obj.View(), rt.alloc); err != nil {
		t.Fatal(err)
	}
	_, err = obj.Value()
	wantKind(t, err, errors.KindFreedMemory)
}

func TestDefinitionErrors(t *testing.T) {
	t.Run("unnamed", func(t *testing.T) {
		r := NewRegistry(NewHostRuntime())
		_, err := r.BeginStructure(Descriptor{Kind: KindStruct})
		wantKind(t, err, errors.KindUnnamedStructure)
	})
	t.Run("duplicate member", func(t *testing.T) {
		b := newBuilder(t)
		s := b.begin(Descriptor{Name: "S", Kind: KindStruct, ByteSize: 2})
		b.member(s, storage("a", MemberUint, 0, 8))
		err := b.r.AttachMember(s, storage("a", MemberUint, 8, 8), false)
		wantKind(t, err, errors.KindDuplicateMember)
	})
	t.Run("duplicate name", func(t *testing.T) {
		tests := []struct {
			kind Kind
			warn int
		}{
			{KindStruct, 1},
			{KindArgStruct, 0},
		}
		for _, tt := range tests {
			t.Run(tt.kind.String(), func(t *testing.T) {
				core, logs := observer.New(zapcore.WarnLevel)
				b := newBuilder(t, WithLogger(zap.New(core)))
				first := b.begin(Descriptor{Name: "Twin", Kind: tt.kind})
				b.begin(Descriptor{Name: "Twin", Kind: tt.kind})
				if found, ok := b.r.Find("Twin"); !ok || found != first {
					t.Error("Find did not return the first definition")
				}
				if n := logs.FilterMessage("structure name already defined").Len(); n != tt.warn {
					t.Errorf("logged %d warnings, want %d", n, tt.warn)
				}
			})
		}
	})
	t.Run("recursive by value", func(t *testing.T) {
		b := newBuilder(t)
		s := b.begin(Descriptor{Name: "Loop", Kind: KindStruct, ByteSize: 4})
		b.member(s, MemberDescriptor{Name: "self", Type: MemberObject, BitSize: 32, ByteSize: 4, Slot: 0, Structure: s.Handle()})
		b.end(s)
		wantKind(t, b.r.FinalizeAll(), errors.KindRecursiveType)
	})
	t.Run("recursive through pointer", func(t *testing.T) {
		b := newBuilder(t)
		node := b.begin(Descriptor{Name: "Node", Kind: KindStruct, ByteSize: 8, Align: 4})
		ptr := b.pointer("?*Node", node, FlagNullable)
		b.member(node, storage("value", MemberInt, 0, 32))
		b.member(node, object("next", ptr, 32, 0))
		b.end(node)
		b.finalize()
		if !node.HasPointer() {
			t.Error("Node must be flagged as holding pointers")
		}
	})
}

func TestSliceLength(t *testing.T) {
	b := newBuilder(t)
	ints := b.begin(Descriptor{Name: "[]i32", Kind: KindSlice, Align: 4})
	b.member(ints, storage("", MemberInt, 0, 32))
	b.end(ints)
	b.finalize()

	obj, err := ints.New(3)
	if err != nil {
		t.Fatal(err)
	}
	if obj.Len() != 3 {
		t.Errorf("Len() = %d, want 3", obj.Len())
	}

	tests := []struct {
		name string
		init any
		kind errors.Kind
	}{
		{"negative", -1, errors.KindTypeMismatch},
		{"past address space", int64(1) << 30, errors.KindOverflow},
		{"huge", int64(1) << 62, errors.KindOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ints.New(tt.init)
			wantKind(t, err, tt.kind)
		})
	}
}
