package witmap

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/structure"
)

// Signature is the WIT view of a foreign function. Special parameters
// (allocators, promises, signals, streams) are omitted since the host
// supplies them.
type Signature struct {
	Name   string
	Params []wit.Field
	Result wit.Type
}

// Function maps a function structure to its signature.
func (m *Mapper) Function(name string, fn *structure.Structure) (*Signature, error) {
	if fn == nil || fn.Kind != structure.KindFunction {
		return nil, errors.TypeMismatch(errors.PhaseDefine, fmt.Sprint(fn), nil, fn, "function structure")
	}
	args := fn.ArgStruct()
	if args == nil {
		return nil, unsupported(fn, "function has no argument structure")
	}
	sig := &Signature{Name: Kebab(name)}
	for _, p := range args.Params() {
		if p.Type == structure.MemberObject && p.Structure != nil && p.Structure.Purpose != structure.PurposeNone {
			continue
		}
		t, err := m.member(p)
		if err != nil {
			return nil, fieldError(args, p, err)
		}
		sig.Params = append(sig.Params, wit.Field{Name: Kebab(p.Name), Type: t})
	}
	if ret := args.ReturnMember(); ret != nil {
		t, err := m.member(ret)
		if err != nil {
			return nil, fieldError(args, ret, err)
		}
		sig.Result = t
	}
	return sig, nil
}

// String renders the signature in WIT syntax: "add: func(a: s32, b: s32) -> s32".
func (s *Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString(": func(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(TypeString(p.Type))
	}
	b.WriteString(")")
	if s.Result != nil {
		b.WriteString(" -> ")
		b.WriteString(TypeString(s.Result))
	}
	return b.String()
}

// TypeString renders a type reference. Named definitions print their name;
// anonymous ones print their structure.
func TypeString(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return kindString(v.Kind)
	default:
		return fmt.Sprintf("%T", t)
	}
}

func kindString(k wit.TypeDefKind) string {
	switch v := k.(type) {
	case *wit.List:
		return "list<" + TypeString(v.Type) + ">"
	case *wit.Option:
		return "option<" + TypeString(v.Type) + ">"
	case *wit.Result:
		switch {
		case v.OK == nil && v.Err == nil:
			return "result"
		case v.Err == nil:
			return "result<" + TypeString(v.OK) + ">"
		default:
			return "result<" + TypeString(v.OK) + ", " + TypeString(v.Err) + ">"
		}
	case *wit.Tuple:
		parts := make([]string, len(v.Types))
		for i, t := range v.Types {
			parts[i] = TypeString(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case *wit.Own:
		if v.Type != nil && v.Type.Name != nil {
			return "own<" + *v.Type.Name + ">"
		}
		return "own<_>"
	case *wit.Record:
		return "record"
	case *wit.Variant:
		return "variant"
	case *wit.Enum:
		return "enum"
	default:
		return fmt.Sprintf("%T", k)
	}
}

// Declaration renders a named definition:
//
//	record point {
//	    x: s32,
//	    y: s32,
//	}
func Declaration(td *wit.TypeDef) string {
	if td == nil || td.Name == nil {
		return ""
	}
	name := *td.Name
	var b strings.Builder
	block := func(keyword string, lines []string) string {
		b.WriteString(keyword + " " + name + " {\n")
		for _, l := range lines {
			b.WriteString("    " + l + ",\n")
		}
		b.WriteString("}")
		return b.String()
	}
	switch k := td.Kind.(type) {
	case *wit.Record:
		lines := make([]string, len(k.Fields))
		for i, f := range k.Fields {
			lines[i] = f.Name + ": " + TypeString(f.Type)
		}
		return block("record", lines)
	case *wit.Variant:
		lines := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			lines[i] = c.Name
			if c.Type != nil {
				lines[i] += "(" + TypeString(c.Type) + ")"
			}
		}
		return block("variant", lines)
	case *wit.Enum:
		lines := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			lines[i] = c.Name
		}
		return block("enum", lines)
	case *wit.Own:
		return "resource " + name + ";"
	default:
		return "type " + name + " = " + kindString(td.Kind) + ";"
	}
}
