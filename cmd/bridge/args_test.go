package main

import (
	"context"
	"math/big"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-bridge/structure"
)

func TestConvertArg(t *testing.T) {
	i32 := &structure.Structure{Name: "i32", Kind: structure.KindPrimitive, ByteSize: 4,
		Members: []*structure.Member{{Type: structure.MemberInt, BitSize: 32}}}
	color := &structure.Structure{Name: "Color", Kind: structure.KindEnum, ByteSize: 1}
	point := &structure.Structure{Name: "Point", Kind: structure.KindStruct, ByteSize: 8}
	text := &structure.Structure{Name: "[]const u8", Kind: structure.KindSlice, Flags: structure.FlagString}

	tests := []struct {
		name   string
		value  string
		member *structure.Member
		want   any
	}{
		{"bool", "true", &structure.Member{Type: structure.MemberBool, BitSize: 1}, true},
		{"int", "-12", &structure.Member{Type: structure.MemberInt, BitSize: 32}, int64(-12)},
		{"hex uint", "0xff", &structure.Member{Type: structure.MemberUint, BitSize: 8}, uint64(255)},
		{"float", "1.5", &structure.Member{Type: structure.MemberFloat, BitSize: 64}, 1.5},
		{"wide int", "170141183460469231731687303715884105727",
			&structure.Member{Type: structure.MemberInt, BitSize: 128},
			func() *big.Int {
				n, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
				return n
			}()},
		{"primitive object", "7", &structure.Member{Type: structure.MemberObject, Structure: i32}, int64(7)},
		{"enum by number", "2", &structure.Member{Type: structure.MemberObject, Structure: color}, int64(2)},
		{"enum by name", "red", &structure.Member{Type: structure.MemberObject, Structure: color}, "red"},
		{"string slice", "hello", &structure.Member{Type: structure.MemberObject, Structure: text}, "hello"},
		{"struct json", `{"x": 1, "y": 2.5}`, &structure.Member{Type: structure.MemberObject, Structure: point},
			map[string]any{"x": int64(1), "y": 2.5}},
		{"array json", `[1, 2]`, &structure.Member{Type: structure.MemberObject, Structure: point},
			[]any{int64(1), int64(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertArg(tt.value, tt.member)
			if err != nil {
				t.Fatalf("convertArg(%q) error: %v", tt.value, err)
			}
			if want, ok := tt.want.(*big.Int); ok {
				n, ok := got.(*big.Int)
				if !ok || n.Cmp(want) != 0 {
					t.Errorf("got %v, want %v", got, want)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConvertArgErrors(t *testing.T) {
	point := &structure.Structure{Name: "Point", Kind: structure.KindStruct, ByteSize: 8}

	tests := []struct {
		name   string
		value  string
		member *structure.Member
	}{
		{"bad bool", "maybe", &structure.Member{Type: structure.MemberBool, BitSize: 1}},
		{"bad int", "ten", &structure.Member{Type: structure.MemberInt, BitSize: 32}},
		{"negative uint", "-1", &structure.Member{Type: structure.MemberUint, BitSize: 32}},
		{"bad wide int", "1.5", &structure.Member{Type: structure.MemberUint, BitSize: 128}},
		{"bad json", "{x:1", &structure.Member{Type: structure.MemberObject, Structure: point}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := convertArg(tt.value, tt.member); err == nil {
				t.Errorf("convertArg(%q) succeeded", tt.value)
			}
		})
	}
}

func TestParamsSkipsSynthesized(t *testing.T) {
	promise := &structure.Structure{Name: "Promise(void)", Kind: structure.KindStruct, Purpose: structure.PurposePromise}
	args := &structure.Structure{Name: "fetch.args", Kind: structure.KindArgStruct, Members: []*structure.Member{
		{Name: "retval", Type: structure.MemberVoid},
		{Name: "id", Type: structure.MemberUint, BitSize: 32},
		{Name: "done", Type: structure.MemberObject, Structure: promise},
	}}
	fn := &structure.Structure{Name: "fetch", Kind: structure.KindFunction, Members: []*structure.Member{
		{Name: "args", Type: structure.MemberObject, Structure: args},
	}}

	ps := params(fn)
	if len(ps) != 1 || ps[0].Name != "id" {
		t.Fatalf("params = %v, want [id]", ps)
	}
	if params(&structure.Structure{Kind: structure.KindStruct}) != nil {
		t.Error("params of a non-function should be nil")
	}
}

func TestFormatResult(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "void"},
		{"int", int64(42), "42"},
		{"bool", true, "true"},
		{"string", "hi", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatResult(ctx, tt.value)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("formatResult(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}
