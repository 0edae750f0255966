package env

import (
	"context"
	"io"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/structure"
)

// Status codes returned to the module from call_host.
const (
	StatusOK     uint32 = 0
	StatusStop   uint32 = 1
	StatusFailed uint32 = 2
)

// callback is a host value the module invokes by handle. done reports that
// the handle is spent and can be removed.
type callback interface {
	invoke(ctx context.Context, e *Environment, args uint32) (status uint32, done bool, err error)
}

// HandleInbound dispatches a call_host from the module to the callback
// registered under handle. Errors are logged; the module only sees the
// status.
func (e *Environment) HandleInbound(ctx context.Context, handle, args uint32) uint32 {
	h := resource.Handle(handle)
	v, ok := e.table.Get(h)
	if !ok {
		e.logger.Warn("inbound call to unknown handle", zap.Uint32("handle", handle))
		return StatusFailed
	}
	cb, ok := v.(callback)
	if !ok || !e.table.Borrow(h) {
		e.logger.Warn("inbound call to a handle that is not callable", zap.Uint32("handle", handle))
		return StatusFailed
	}
	status, done, err := cb.invoke(ctx, e, args)
	e.table.Return(h)
	if err != nil {
		e.logger.Error("inbound callback failed",
			zap.Uint32("handle", handle),
			zap.Uint32("args", args),
			zap.Error(err))
	} else {
		e.logger.Debug("inbound callback",
			zap.Uint32("handle", handle),
			zap.Uint32("status", status),
			zap.Bool("done", done))
	}
	if done {
		e.table.Remove(h)
	}
	return status
}

// payload reads the object a callback passes at address and copies it out
// of foreign memory, since the module may reuse that memory once the
// callback returns.
func (e *Environment) payload(s *structure.Structure, address uint32) (any, error) {
	if s == nil || address == 0 {
		return nil, nil
	}
	n, err := safecast.Conv[uint32](s.ByteSize)
	if err != nil {
		return nil, err
	}
	view, err := e.FindMemory(address, n)
	if err != nil {
		return nil, err
	}
	obj, err := s.Wrap(view, false)
	if err != nil {
		return nil, err
	}
	v, err := obj.Result()
	if err != nil {
		return nil, err
	}
	return detach(v)
}

func detach(v any) (any, error) {
	obj, ok := v.(*structure.Object)
	if !ok || !obj.View().Foreign() {
		return v, nil
	}
	return obj.Structure().New(obj, structure.InHostMemory())
}

// promiseCallback settles a promise with the payload the module passes.
type promiseCallback struct {
	p       *Promise
	payload *structure.Structure
}

func (c *promiseCallback) invoke(ctx context.Context, e *Environment, args uint32) (uint32, bool, error) {
	v, err := e.payload(c.payload, args)
	var ev *structure.ErrorValue
	if err != nil && !errors.As(err, &ev) {
		c.p.settle(nil, err)
		return StatusFailed, true, err
	}
	c.p.settle(v, err)
	return StatusOK, true, nil
}

func (c *promiseCallback) Drop() {
	c.p.settle(nil, closedError())
}

// generatorCallback pushes one item per call. A null payload ends the
// sequence; an error payload ends it with that error.
type generatorCallback struct {
	g       *Generator
	payload *structure.Structure
}

func (c *generatorCallback) invoke(ctx context.Context, e *Environment, args uint32) (uint32, bool, error) {
	v, err := e.payload(c.payload, args)
	if err != nil {
		var ev *structure.ErrorValue
		c.g.finish(err)
		if errors.As(err, &ev) {
			return StatusOK, true, nil
		}
		return StatusFailed, true, err
	}
	if v == nil {
		c.g.finish(nil)
		return StatusOK, true, nil
	}
	if c.g.push(v) {
		return StatusStop, false, nil
	}
	return StatusOK, false, nil
}

func (c *generatorCallback) Drop() {
	c.g.finish(closedError())
}

// abortSignal answers StatusStop once its context is done. The module polls
// it through call_host.
type abortSignal struct {
	ctx context.Context
}

func (s *abortSignal) invoke(ctx context.Context, e *Environment, args uint32) (uint32, bool, error) {
	if s.ctx.Err() != nil {
		return StatusStop, false, nil
	}
	return StatusOK, false, nil
}

// allocatorAdapter serves allocation requests from the module through a
// host-chosen allocator. The argument block is {length, align, address}:
// a zero address allocates and writes the result back, anything else frees.
type allocatorAdapter struct {
	alloc memory.Allocator
	live  map[uint32]*memory.View
}

func newAllocatorAdapter(a memory.Allocator) *allocatorAdapter {
	return &allocatorAdapter{alloc: a, live: make(map[uint32]*memory.View)}
}

func (a *allocatorAdapter) invoke(ctx context.Context, e *Environment, args uint32) (uint32, bool, error) {
	w, err := e.words(args, 3)
	if err != nil {
		return StatusFailed, false, err
	}
	length, align, addr := w[0], w[1], w[2]
	if addr != 0 {
		v, ok := a.live[addr]
		if !ok {
			return StatusFailed, false, errors.New(errors.PhaseMemory, errors.KindNotFound).
				Detail("free of unknown block %#x", addr).
				Build()
		}
		delete(a.live, addr)
		if err := e.views.Free(v, a.alloc); err != nil {
			return StatusFailed, false, err
		}
		return StatusOK, false, nil
	}
	v, err := e.views.Allocate(int(length), int(align), a.alloc)
	if err != nil {
		return StatusFailed, false, err
	}
	got, ok := v.Address()
	if !ok {
		_ = e.views.Free(v, a.alloc)
		return StatusFailed, false, errors.New(errors.PhaseMemory, errors.KindForeignRequired).
			Detail("allocator returned host memory").
			Build()
	}
	if length > 0 {
		a.live[got] = v
	}
	if err := e.putWord(args, 2, got); err != nil {
		return StatusFailed, false, err
	}
	return StatusOK, false, nil
}

// streamAdapter moves bytes between the module and an io.Reader or
// io.Writer. The argument block is {address, length, count}; count receives
// the number of bytes transferred, 0 at end of input.
type streamAdapter struct {
	r io.Reader
	w io.Writer
}

func (s *streamAdapter) invoke(ctx context.Context, e *Environment, args uint32) (uint32, bool, error) {
	w, err := e.words(args, 2)
	if err != nil {
		return StatusFailed, false, err
	}
	view, err := e.views.ForeignView(w[0], w[1])
	if err != nil {
		return StatusFailed, false, err
	}
	buf, err := view.Bytes()
	if err != nil {
		return StatusFailed, false, err
	}
	var n int
	if s.r != nil {
		n, err = s.r.Read(buf)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	} else {
		n, err = s.w.Write(buf)
	}
	if perr := e.putWord(args, 2, uint32(n)); perr != nil {
		return StatusFailed, false, perr
	}
	if err != nil {
		return StatusFailed, false, err
	}
	return StatusOK, false, nil
}
