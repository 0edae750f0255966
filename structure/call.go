package structure

import (
	"context"

	"github.com/wippyai/wasm-bridge/errors"
)

// Function objects hold the thunk index at offset 0 and the function index at
// offset 4.

// Thunk returns the thunk and function indices of a function object.
func (o *Object) Thunk() (thunk, fn uint32, err error) {
	if o.s.Kind != KindFunction {
		return 0, 0, errors.Unsupported(errors.PhaseCall, o.s.Kind.String()+" is not a function")
	}
	if o.view.Len() < 8 {
		return 0, 0, errors.WrongLength(o.s.String(), 8, o.view.Len())
	}
	b, err := o.view.Bytes()
	if err != nil {
		return 0, 0, err
	}
	thunk = uint32(addressGetter(b, 0, o.little()).(uint64))
	fn = uint32(addressGetter(b, 4, o.little()).(uint64))
	return thunk, fn, nil
}

// Call invokes a function object with positional arguments.
func (o *Object) Call(ctx context.Context, args ...any) (any, error) {
	if o.s.Kind != KindFunction {
		return nil, errors.Unsupported(errors.PhaseCall, o.s.Kind.String()+" is not callable")
	}
	return o.s.registry.rt.Call(ctx, o, args)
}

// CallMethod invokes a bound method of o's structure. Methods declared as
// taking the instance receive o as their first argument.
func (o *Object) CallMethod(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := o.s.Method(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "method", o.s.String()+"."+name)
	}
	if m := o.s.staticByName[name]; m != nil && m.Flags.Has(MemberMethod) {
		args = append([]any{o}, args...)
	}
	return fn.Call(ctx, args...)
}

// Invoke calls the static function name of s.
func (s *Structure) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := s.Method(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "function", s.String()+"."+name)
	}
	return fn.Call(ctx, args...)
}

// Params returns the parameter members of an argument struct, in call order.
func (s *Structure) Params() []*Member {
	if s.Kind != KindArgStruct || len(s.Members) <= retvalIndex {
		return nil
	}
	return s.Members[retvalIndex+1:]
}

// ReturnMember returns the member an argument struct keeps the result in.
func (s *Structure) ReturnMember() *Member {
	if s.Kind != KindArgStruct || len(s.Members) <= retvalIndex {
		return nil
	}
	return s.Members[retvalIndex]
}

// ParamObject returns the child object of a reference-typed parameter.
func (o *Object) ParamObject(m *Member) (*Object, error) {
	if m.Type != MemberObject {
		return nil, errors.Unsupported(errors.PhaseCall, "parameter "+m.Name+" is not an object")
	}
	return o.child(m)
}

// SetParam initializes parameter m of an argument struct from v.
func (o *Object) SetParam(m *Member, v any) error {
	return annotate(o.writeMember(m, v), o.s, m.Name)
}

// ReturnValue extracts the result of a completed call from an argument
// struct. See Result for how the value is unwrapped.
func (o *Object) ReturnValue() (any, error) {
	m := o.s.ReturnMember()
	if m == nil {
		return nil, errors.Unsupported(errors.PhaseCall, o.s.String()+" is not an argument struct")
	}
	return o.unwrap(m)
}

// Result unwraps o the way a call result is presented: an error union
// yields its error or payload, an optional nil or its payload, value-like
// structures their Go value, and anything else the object itself.
func (o *Object) Result() (any, error) {
	switch o.s.Kind {
	case KindErrorUnion:
		e, err := o.unionError()
		if err != nil {
			return nil, err
		}
		if e != nil {
			return nil, e
		}
		return o.unwrap(o.s.Members[0])
	case KindOptional:
		present, err := o.present()
		if err != nil || !present {
			return nil, err
		}
		return o.unwrap(o.s.Members[0])
	}
	if o.s.Kind.valueLike() {
		return o.Value()
	}
	return o, nil
}

func (o *Object) unwrap(m *Member) (any, error) {
	if m.Type != MemberObject {
		return o.readMember(m)
	}
	c, err := o.child(m)
	if err != nil {
		return nil, err
	}
	return c.Result()
}
