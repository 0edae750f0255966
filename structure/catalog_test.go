package structure

import (
	"reflect"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
)

func TestCatalogReplay(t *testing.T) {
	var cat Catalog
	b := newBuilder(t, WithRecorder(&cat))
	point := b.point()
	b.pointer("*Point", point, 0)
	colorEnum(b, 0)
	b.finalize()

	data, err := cat.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeCatalog(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded.Ops) != len(cat.Ops) {
		t.Fatalf("decoded %d ops, recorded %d", len(decoded.Ops), len(cat.Ops))
	}

	r := NewRegistry(NewHostRuntime())
	if err := decoded.Replay(r); err != nil {
		t.Fatal(err)
	}
	if len(r.Structures()) != 3 {
		t.Fatalf("replayed %d structures, want 3", len(r.Structures()))
	}

	p, ok := r.Find("Point")
	if !ok {
		t.Fatal("Point not replayed")
	}
	if p.Kind != KindStruct || len(p.Members) != 2 || !p.Finalized() {
		t.Errorf("Point = %s with %d members", p.Kind, len(p.Members))
	}
	ptr, _ := r.Find("*Point")
	if ptr == nil || ptr.TargetStructure() != p {
		t.Error("pointer target was not remapped to the replayed structure")
	}

	color, _ := r.Find("Color")
	if color == nil {
		t.Fatal("Color not replayed")
	}
	if got := color.Items(); !reflect.DeepEqual(got, []string{"red", "green", "blue"}) {
		t.Errorf("Items() = %v", got)
	}
	obj, err := color.New(4)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Value(); v != "blue" {
		t.Errorf("Value() = %v", v)
	}
}

func TestCatalogErrors(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeCatalog([]byte{0xc1})
		wantKind(t, err, errors.KindInvalidData)
	})
	t.Run("unknown handle", func(t *testing.T) {
		cat := &Catalog{Ops: []Op{{Kind: OpEnd, Handle: 9}}}
		err := cat.Replay(NewRegistry(NewHostRuntime()))
		wantKind(t, err, errors.KindInvalidData)
	})
	t.Run("unknown op", func(t *testing.T) {
		cat := &Catalog{Ops: []Op{{Kind: 42}}}
		err := cat.Replay(NewRegistry(NewHostRuntime()))
		wantKind(t, err, errors.KindInvalidData)
	})
}
