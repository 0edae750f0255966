// Package witmap projects bridge structures onto WebAssembly Interface Type
// (WIT) definitions so that foreign modules can be described in the same
// vocabulary as components.
//
// Pointers are transparent: a pointer maps to its target, or to an option of
// it when nullable. Strings are arrays and slices flagged as strings. Purpose
// structures and opaque types map to owned resource handles.
package witmap

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/structure"
)

// Mapper converts structures to WIT types. Results are cached so each
// structure maps to a single *wit.TypeDef, which also terminates recursion
// through self-referencing pointers.
type Mapper struct {
	defs  map[*structure.Structure]*wit.TypeDef
	named []*wit.TypeDef
}

// New creates an empty mapper.
func New() *Mapper {
	return &Mapper{defs: make(map[*structure.Structure]*wit.TypeDef)}
}

// Type returns the WIT type of s. Primitives map to WIT primitives, every
// other kind to a *wit.TypeDef. A nil type with a nil error means void.
func (m *Mapper) Type(s *structure.Structure) (wit.Type, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Kind {
	case structure.KindPrimitive:
		return m.member(s.Element())
	case structure.KindFunction:
		return nil, unsupported(s, "functions have no value type")
	case structure.KindPointer:
		if !s.Flags.Has(structure.FlagNullable) && s.Purpose == structure.PurposeNone {
			return m.Type(s.TargetStructure())
		}
	case structure.KindArray, structure.KindSlice, structure.KindVector:
		if s.Flags.Has(structure.FlagString) {
			return wit.String{}, nil
		}
	}
	if td, ok := m.defs[s]; ok {
		return td, nil
	}
	td := &wit.TypeDef{}
	if named(s) {
		name := Kebab(s.Name)
		td.Name = &name
	}
	m.defs[s] = td
	kind, err := m.kind(s)
	if err != nil {
		delete(m.defs, s)
		return nil, err
	}
	td.Kind = kind
	if td.Name != nil {
		m.named = append(m.named, td)
	}
	return td, nil
}

// Named returns the named type definitions produced so far, in the order
// they were first mapped.
func (m *Mapper) Named() []*wit.TypeDef { return m.named }

// named reports whether s gets its own WIT declaration.
func named(s *structure.Structure) bool {
	if s.Name == "" {
		return false
	}
	switch s.Kind {
	case structure.KindStruct, structure.KindUnion, structure.KindEnum,
		structure.KindErrorSet, structure.KindOpaque:
		return Kebab(s.Name) != ""
	}
	return false
}

func (m *Mapper) kind(s *structure.Structure) (wit.TypeDefKind, error) {
	if s.Purpose != structure.PurposeNone || s.Kind == structure.KindOpaque {
		return m.resource(s), nil
	}
	switch s.Kind {
	case structure.KindStruct, structure.KindArgStruct:
		if s.Flags.Has(structure.FlagTuple) {
			return m.tuple(s)
		}
		return m.record(s)
	case structure.KindUnion:
		return m.variant(s)
	case structure.KindEnum:
		cases := make([]wit.EnumCase, 0, len(s.Items()))
		for _, name := range s.Items() {
			cases = append(cases, wit.EnumCase{Name: Kebab(name)})
		}
		return &wit.Enum{Cases: cases}, nil
	case structure.KindErrorSet:
		errs := s.Errors()
		cases := make([]wit.EnumCase, 0, len(errs))
		for _, e := range errs {
			cases = append(cases, wit.EnumCase{Name: Kebab(e.Name)})
		}
		return &wit.Enum{Cases: cases}, nil
	case structure.KindErrorUnion:
		ok, err := m.member(s.Members[0])
		if err != nil {
			return nil, err
		}
		res := &wit.Result{OK: ok}
		if code := s.Members[1]; code.Structure != nil && code.Structure.Kind == structure.KindErrorSet {
			if res.Err, err = m.Type(code.Structure); err != nil {
				return nil, err
			}
		} else {
			res.Err = primitive(code)
		}
		return res, nil
	case structure.KindOptional:
		t, err := m.member(s.Element())
		if err != nil {
			return nil, err
		}
		return &wit.Option{Type: t}, nil
	case structure.KindPointer:
		t, err := m.Type(s.TargetStructure())
		if err != nil {
			return nil, err
		}
		return &wit.Option{Type: t}, nil
	case structure.KindArray, structure.KindSlice, structure.KindVector:
		t, err := m.member(s.Element())
		if err != nil {
			return nil, err
		}
		return &wit.List{Type: t}, nil
	}
	return nil, unsupported(s, "no WIT equivalent")
}

func (m *Mapper) resource(s *structure.Structure) wit.TypeDefKind {
	name := Kebab(s.Name)
	if name == "" {
		name = Kebab(s.Kind.String())
	}
	return &wit.Own{Type: &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}}
}

func (m *Mapper) record(s *structure.Structure) (wit.TypeDefKind, error) {
	fields := make([]wit.Field, 0, len(s.Members))
	for _, mem := range s.Members {
		if !valued(mem) {
			continue
		}
		t, err := m.member(mem)
		if err != nil {
			return nil, fieldError(s, mem, err)
		}
		if t == nil {
			continue
		}
		fields = append(fields, wit.Field{Name: Kebab(mem.Name), Type: t})
	}
	return &wit.Record{Fields: fields}, nil
}

func (m *Mapper) tuple(s *structure.Structure) (wit.TypeDefKind, error) {
	types := make([]wit.Type, 0, len(s.Members))
	for _, mem := range s.Members {
		if !valued(mem) {
			continue
		}
		t, err := m.member(mem)
		if err != nil {
			return nil, fieldError(s, mem, err)
		}
		if t != nil {
			types = append(types, t)
		}
	}
	return &wit.Tuple{Types: types}, nil
}

func (m *Mapper) variant(s *structure.Structure) (wit.TypeDefKind, error) {
	cases := make([]wit.Case, 0, len(s.Members))
	for _, mem := range s.Members {
		if mem.Flags.Has(structure.MemberSelector) || !valued(mem) {
			continue
		}
		t, err := m.member(mem)
		if err != nil {
			return nil, fieldError(s, mem, err)
		}
		cases = append(cases, wit.Case{Name: Kebab(mem.Name), Type: t})
	}
	return &wit.Variant{Cases: cases}, nil
}

// member maps one member. Void members yield nil.
func (m *Mapper) member(mem *structure.Member) (wit.Type, error) {
	if mem == nil {
		return nil, nil
	}
	switch mem.Type {
	case structure.MemberVoid:
		return nil, nil
	case structure.MemberObject:
		return m.Type(mem.Structure)
	case structure.MemberBool, structure.MemberInt, structure.MemberUint, structure.MemberFloat:
		if t := primitive(mem); t != nil {
			return t, nil
		}
		return nil, errors.Unsupported(errors.PhaseDefine,
			fmt.Sprintf("%s of %d bits has no WIT equivalent", mem.Type, mem.BitSize))
	}
	return nil, errors.Unsupported(errors.PhaseDefine, fmt.Sprintf("member type %s has no WIT equivalent", mem.Type))
}

// primitive maps a scalar member to the narrowest WIT primitive that holds
// it, or nil when none does.
func primitive(mem *structure.Member) wit.Type {
	bits := mem.BitSize
	switch mem.Type {
	case structure.MemberBool:
		return wit.Bool{}
	case structure.MemberInt:
		switch {
		case bits <= 8:
			return wit.S8{}
		case bits <= 16:
			return wit.S16{}
		case bits <= 32:
			return wit.S32{}
		case bits <= 64:
			return wit.S64{}
		}
	case structure.MemberUint:
		switch {
		case bits <= 8:
			return wit.U8{}
		case bits <= 16:
			return wit.U16{}
		case bits <= 32:
			return wit.U32{}
		case bits <= 64:
			return wit.U64{}
		}
	case structure.MemberFloat:
		switch {
		case bits <= 32:
			return wit.F32{}
		case bits <= 64:
			return wit.F64{}
		}
	}
	return nil
}

// valued reports whether a member carries a runtime value.
func valued(mem *structure.Member) bool {
	switch mem.Type {
	case structure.MemberTypeRef, structure.MemberLiteral, structure.MemberNull,
		structure.MemberUndefined, structure.MemberUnsupported:
		return false
	}
	return true
}

func unsupported(s *structure.Structure, detail string) error {
	return errors.New(errors.PhaseDefine, errors.KindUnsupported).
		Structure(s.String()).
		Detail("%s", detail).
		Build()
}

func fieldError(s *structure.Structure, mem *structure.Member, cause error) error {
	return errors.New(errors.PhaseDefine, errors.KindOf(cause)).
		Structure(s.String()).
		Path(mem.Name).
		Cause(cause).
		Build()
}
