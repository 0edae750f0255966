package env

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
)

// Promise is the result of a foreign function that completes through a
// callback instead of returning.
type Promise struct {
	done     chan struct{}
	value    any
	err      error
	onSettle []func(any, error)
	mu       sync.Mutex
	settled  bool
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Wait blocks until the promise settles or ctx ends.
func (p *Promise) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, errors.New(errors.PhaseAsync, errors.KindAborted).
			Detail("waiting for promise").
			Cause(ctx.Err()).
			Build()
	}
}

// Result returns the settled value without blocking. Asking an unsettled
// promise for its value is a deadlock: the module can only settle it when
// control returns to it.
func (p *Promise) Result() (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	default:
		return nil, errors.New(errors.PhaseAsync, errors.KindDeadlock).
			Detail("promise has not settled").
			Build()
	}
}

// Then registers fn to run when the promise settles, immediately if it
// already has.
func (p *Promise) Then(fn func(any, error)) {
	p.mu.Lock()
	if !p.settled {
		p.onSettle = append(p.onSettle, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn(p.value, p.err)
}

// settle fixes the outcome. Only the first call has an effect.
func (p *Promise) settle(v any, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value, p.err = v, err
	fns := p.onSettle
	p.onSettle = nil
	close(p.done)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(v, err)
	}
	return true
}

// Generator is an async sequence fed by a foreign function through
// repeated callbacks.
type Generator struct {
	items     []any
	notify    chan struct{}
	finished  chan struct{}
	err       error
	onFinish  []func(error)
	mu        sync.Mutex
	done      bool
	cancelled bool
}

func newGenerator() *Generator {
	return &Generator{
		notify:   make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
}

// Next returns the next item. ok is false once the sequence has ended, in
// which case err is the error it ended with, if any.
func (g *Generator) Next(ctx context.Context) (v any, ok bool, err error) {
	for {
		g.mu.Lock()
		if len(g.items) > 0 {
			v = g.items[0]
			g.items[0] = nil
			g.items = g.items[1:]
			g.mu.Unlock()
			return v, true, nil
		}
		if g.done {
			err = g.err
			g.mu.Unlock()
			return nil, false, err
		}
		g.mu.Unlock()

		select {
		case <-g.notify:
		case <-ctx.Done():
			return nil, false, errors.New(errors.PhaseAsync, errors.KindAborted).
				Detail("waiting for generator").
				Cause(ctx.Err()).
				Build()
		}
	}
}

// Collect drains the generator.
func (g *Generator) Collect(ctx context.Context) ([]any, error) {
	var out []any
	for {
		v, ok, err := g.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Cancel asks the source to stop and waits until it acknowledges by ending
// the sequence. Items not yet consumed are discarded.
func (g *Generator) Cancel(ctx context.Context) error {
	g.mu.Lock()
	g.cancelled = true
	clear(g.items)
	g.items = nil
	g.mu.Unlock()

	select {
	case <-g.finished:
		return nil
	case <-ctx.Done():
		return errors.New(errors.PhaseAsync, errors.KindAborted).
			Detail("waiting for generator to acknowledge cancellation").
			Cause(ctx.Err()).
			Build()
	}
}

// Done is closed once the sequence has ended.
func (g *Generator) Done() <-chan struct{} { return g.finished }

// push appends an item. stop reports that the consumer cancelled and the
// source should end the sequence.
func (g *Generator) push(v any) (stop bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return true
	}
	if g.cancelled {
		return true
	}
	g.items = append(g.items, v)
	g.wake()
	return false
}

func (g *Generator) finish(err error) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	g.err = err
	fns := g.onFinish
	g.onFinish = nil
	g.wake()
	close(g.finished)
	g.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (g *Generator) whenFinished(fn func(error)) {
	g.mu.Lock()
	if !g.done {
		g.onFinish = append(g.onFinish, fn)
		g.mu.Unlock()
		return
	}
	err := g.err
	g.mu.Unlock()
	fn(err)
}

func (g *Generator) wake() {
	select {
	case g.notify <- struct{}{}:
	default:
	}
}
