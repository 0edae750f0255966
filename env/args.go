package env

import (
	"bytes"
	"context"
	"io"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/structure"
)

// CallOptions supplies the special parameters of a call. Pass it as the
// last argument of Call. Anything left unset gets a fresh adapter: the
// module allocator, the call context as abort signal, an empty reader and a
// discarding writer.
type CallOptions struct {
	Allocator memory.Allocator
	Signal    context.Context
	Reader    io.Reader
	Writer    io.Writer
	// OnSettle runs when an async call completes.
	OnSettle func(any, error)
}

// splitOptions removes a trailing CallOptions from args.
func splitOptions(args []any) (*CallOptions, []any) {
	if n := len(args); n > 0 {
		switch o := args[n-1].(type) {
		case CallOptions:
			return &o, args[:n-1]
		case *CallOptions:
			if o == nil {
				o = &CallOptions{}
			}
			return o, args[:n-1]
		}
	}
	return &CallOptions{}, args
}

// Invocation is the host side of one call: the argument struct and the
// handles it hands the module.
type Invocation struct {
	Args      *structure.Object
	Promise   *Promise
	Generator *Generator
	name      string
	handles   []resource.Handle
	table     *resource.Table
	onSettle  func(any, error)
}

// Async reports whether the call completes through a callback.
func (inv *Invocation) Async() bool { return inv.Promise != nil || inv.Generator != nil }

// release removes the handles of a finished call.
func (inv *Invocation) release() {
	for _, h := range inv.handles {
		inv.table.Remove(h)
	}
	inv.handles = nil
}

// fail settles pending async results with err and releases the call.
func (inv *Invocation) fail(err error) {
	if inv.Promise != nil {
		inv.Promise.settle(nil, err)
	}
	if inv.Generator != nil {
		inv.Generator.finish(err)
	}
	inv.release()
}

// complete returns what the caller sees: the promise or generator of an
// async call, ret otherwise. Handles of async calls stay registered until
// the result settles.
func (inv *Invocation) complete(ret any) any {
	switch {
	case inv.Promise != nil:
		inv.Promise.Then(func(v any, err error) {
			inv.release()
			if inv.onSettle != nil {
				inv.onSettle(v, err)
			}
		})
		return inv.Promise
	case inv.Generator != nil:
		inv.Generator.whenFinished(func(err error) {
			inv.release()
			if inv.onSettle != nil {
				inv.onSettle(nil, err)
			}
		})
		return inv.Generator
	}
	inv.release()
	return ret
}

// CopyArguments fills the argument struct args from positional values.
// Parameters with a special purpose are synthesized from opts instead of
// consuming a positional value. Errors name the position of the offending
// argument.
func (e *Environment) CopyArguments(ctx context.Context, name string, args *structure.Object, values []any, opts *CallOptions) (*Invocation, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	inv := &Invocation{Args: args, name: name, table: e.table, onSettle: opts.OnSettle}
	params := args.Structure().Params()

	expected := 0
	for _, m := range params {
		if purpose(m) == structure.PurposeNone {
			expected++
		}
	}
	if len(values) != expected {
		return nil, errors.ArgumentCount(name, expected, len(values))
	}

	next := 0
	for _, m := range params {
		if p := purpose(m); p != structure.PurposeNone {
			if err := e.special(ctx, inv, args, m, p, opts); err != nil {
				inv.fail(err)
				return nil, err
			}
			continue
		}
		if err := args.SetParam(m, values[next]); err != nil {
			inv.fail(err)
			return nil, errors.Argument(name, next, err)
		}
		next++
	}
	return inv, nil
}

func purpose(m *structure.Member) structure.Purpose {
	if m.Type != structure.MemberObject || m.Structure == nil {
		return structure.PurposeNone
	}
	return m.Structure.Purpose
}

// payloadOf returns the structure a promise or generator delivers: the
// first type member of its parameter structure.
func payloadOf(s *structure.Structure) *structure.Structure {
	for _, m := range s.Members {
		if m.Type == structure.MemberTypeRef && m.Structure != nil {
			return m.Structure
		}
	}
	return nil
}

// special registers the host adapter for a purpose parameter and writes
// its handle into the parameter's first word.
func (e *Environment) special(ctx context.Context, inv *Invocation, args *structure.Object, m *structure.Member, p structure.Purpose, opts *CallOptions) error {
	var (
		kind resource.Kind
		cb   callback
	)
	switch p {
	case structure.PurposeAllocator:
		a := opts.Allocator
		if a == nil {
			a = e.Allocator()
		}
		if a == nil {
			return errors.New(errors.PhaseCall, errors.KindForeignRequired).
				Structure(m.Structure.String()).
				Detail("no allocator for %s", m.Name).
				Build()
		}
		kind, cb = resource.KindAllocator, newAllocatorAdapter(a)
	case structure.PurposePromise:
		inv.Promise = newPromise()
		kind, cb = resource.KindPromise, &promiseCallback{p: inv.Promise, payload: payloadOf(m.Structure)}
	case structure.PurposeGenerator:
		inv.Generator = newGenerator()
		kind, cb = resource.KindGenerator, &generatorCallback{g: inv.Generator, payload: payloadOf(m.Structure)}
	case structure.PurposeAbortSignal:
		sig := opts.Signal
		if sig == nil {
			sig = ctx
		}
		kind, cb = resource.KindAbortSignal, &abortSignal{ctx: sig}
	case structure.PurposeReader:
		r := opts.Reader
		if r == nil {
			r = bytes.NewReader(nil)
		}
		kind, cb = resource.KindReader, &streamAdapter{r: r}
	case structure.PurposeWriter:
		w := opts.Writer
		if w == nil {
			w = io.Discard
		}
		kind, cb = resource.KindWriter, &streamAdapter{w: w}
	default:
		return errors.Unsupported(errors.PhaseCall, "parameter purpose "+p.String())
	}

	h := e.table.Insert(kind, cb)
	if h == 0 {
		return closedError()
	}
	inv.handles = append(inv.handles, h)

	obj, err := args.ParamObject(m)
	if err != nil {
		return err
	}
	b, err := obj.Bytes()
	if err != nil {
		return err
	}
	if len(b) < 4 {
		return errors.WrongLength(m.Structure.String(), 4, len(b))
	}
	e.order.PutUint32(b, uint32(h))
	return nil
}
