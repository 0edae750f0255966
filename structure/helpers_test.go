package structure

import (
	"context"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/memtest"
	"github.com/wippyai/wasm-bridge/memory"
)

// foreignRuntime is a Runtime over in-process linear memory.
type foreignRuntime struct {
	views *memory.Manager
	alloc memory.Allocator
	mem   *memtest.Memory
}

func newForeignRuntime() *foreignRuntime {
	mem := memtest.NewMemory(1 << 16)
	views := memory.NewManager(mem)
	return &foreignRuntime{
		views: views,
		alloc: memory.NewForeignAllocator(views, memtest.NewAllocator(mem)),
		mem:   mem,
	}
}

func (r *foreignRuntime) Views() *memory.Manager      { return r.views }
func (r *foreignRuntime) Allocator() memory.Allocator { return r.alloc }

func (r *foreignRuntime) FindMemory(address, length uint32) (*memory.View, error) {
	return r.views.ForeignView(address, length)
}

func (r *foreignRuntime) Call(ctx context.Context, fn *Object, args []any) (any, error) {
	return nil, errors.Unsupported(errors.PhaseCall, "test runtime")
}

type builder struct {
	t *testing.T
	r *Registry
}

func newBuilder(t *testing.T, opts ...Option) *builder {
	return &builder{t: t, r: NewRegistry(NewHostRuntime(), opts...)}
}

func newBuilderOn(t *testing.T, rt Runtime, opts ...Option) *builder {
	return &builder{t: t, r: NewRegistry(rt, opts...)}
}

func (b *builder) begin(d Descriptor) *Structure {
	b.t.Helper()
	s, err := b.r.BeginStructure(d)
	if err != nil {
		b.t.Fatalf("BeginStructure(%s): %v", d.Name, err)
	}
	return s
}

func (b *builder) member(s *Structure, md MemberDescriptor) {
	b.t.Helper()
	if err := b.r.AttachMember(s, md, false); err != nil {
		b.t.Fatalf("AttachMember(%s.%s): %v", s, md.Name, err)
	}
}

// static attaches a static member holding an instance of st with the given bytes.
func (b *builder) static(s *Structure, name string, slot int, st *Structure, bytes []byte) {
	b.t.Helper()
	md := MemberDescriptor{Name: name, Type: MemberObject, Slot: slot, Structure: st.Handle()}
	if err := b.r.AttachMember(s, md, true); err != nil {
		b.t.Fatalf("AttachMember(%s.%s): %v", s, name, err)
	}
	if err := b.r.AttachTemplateSlot(s, true, slot, st, bytes, 0); err != nil {
		b.t.Fatalf("AttachTemplateSlot(%s.%s): %v", s, name, err)
	}
}

func (b *builder) template(s *Structure, bytes []byte) {
	b.t.Helper()
	if err := b.r.AttachTemplate(s, bytes, 0, false); err != nil {
		b.t.Fatalf("AttachTemplate(%s): %v", s, err)
	}
}

func (b *builder) end(s *Structure) *Structure {
	b.t.Helper()
	if err := b.r.EndStructure(s); err != nil {
		b.t.Fatalf("EndStructure(%s): %v", s, err)
	}
	return s
}

func (b *builder) finalize() {
	b.t.Helper()
	if err := b.r.FinalizeAll(); err != nil {
		b.t.Fatalf("FinalizeAll: %v", err)
	}
}

func storage(name string, t MemberType, bitOffset, bits int) MemberDescriptor {
	return MemberDescriptor{Name: name, Type: t, BitOffset: bitOffset, BitSize: bits, ByteSize: (bits + 7) / 8, Slot: -1}
}

func object(name string, st *Structure, bitOffset, slot int) MemberDescriptor {
	return MemberDescriptor{
		Name:      name,
		Type:      MemberObject,
		BitOffset: bitOffset,
		BitSize:   st.ByteSize * 8,
		ByteSize:  st.ByteSize,
		Slot:      slot,
		Structure: st.Handle(),
	}
}

// point is struct { x: i32, y: i32 }.
func (b *builder) point() *Structure {
	s := b.begin(Descriptor{Name: "Point", Kind: KindStruct, ByteSize: 8, Align: 4})
	x := storage("x", MemberInt, 0, 32)
	x.Flags = MemberRequired
	b.member(s, x)
	b.member(s, storage("y", MemberInt, 32, 32))
	return b.end(s)
}

func (b *builder) pointer(name string, target *Structure, flags Flags) *Structure {
	size := 4
	if flags.Has(FlagHasLength) {
		size = 8
	}
	s := b.begin(Descriptor{Name: name, Kind: KindPointer, ByteSize: size, Align: 4, Flags: flags})
	b.member(s, MemberDescriptor{Name: "*", Type: MemberObject, BitSize: 32, ByteSize: 4, Slot: 0, Structure: target.Handle()})
	return b.end(s)
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
