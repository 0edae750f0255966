package shadow

import (
	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
)

// Manager owns the shadow copies of host memory that foreign code sees
// during a call, and the registration list that maps their addresses back.
// It is not safe for concurrent use.
type Manager struct {
	views  *memory.Manager
	alloc  memory.Allocator
	reg    memory.Registry
	ctx    *Context
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for shadow allocation events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager that allocates shadows through alloc.
func NewManager(views *memory.Manager, alloc memory.Allocator, opts ...Option) *Manager {
	m := &Manager{views: views, alloc: alloc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registration list.
func (m *Manager) Registry() *memory.Registry { return &m.reg }

// Context returns the open context, or nil between calls.
func (m *Manager) Context() *Context { return m.ctx }

// StartContext opens a call context, or re-enters the open one.
func (m *Manager) StartContext() *Context {
	if m.ctx == nil {
		m.ctx = &Context{
			allocs: newAllocationList(),
			byView: make(map[*memory.View]*memory.Entry),
		}
	}
	m.ctx.depth++
	return m.ctx
}

// EndContext closes one level of the open context. When the outermost level
// closes, every shadow is unregistered and freed.
func (m *Manager) EndContext() error {
	ctx := m.ctx
	if ctx == nil {
		return errors.Internal(errors.PhaseMemory, "no call context to end")
	}
	ctx.depth--
	if ctx.depth > 0 {
		return nil
	}
	m.ctx = nil

	for _, e := range ctx.entries {
		m.reg.Unregister(e.Address)
	}
	var first error
	for _, v := range ctx.allocs.views {
		if err := m.views.Free(v, m.alloc); err != nil {
			if first == nil {
				first = err
			} else {
				m.logger.Warn("free shadow", zap.Error(err))
			}
		}
	}
	m.logger.Debug("shadow context closed",
		zap.Int("entries", len(ctx.entries)),
		zap.Int("allocations", len(ctx.allocs.views)))
	ctx.allocs.release()
	ctx.allocs = nil
	ctx.entries = nil
	ctx.byView = nil
	return first
}

// ShadowAddress returns the foreign address through which foreign code can
// reach t during the call. Foreign targets are returned as is. Host targets
// get a shadow allocation, shared with the rest of the cluster when c is
// not nil. Writable shadows are copied back by UpdateShadowTargets.
func (m *Manager) ShadowAddress(ctx *Context, t *Target, c *Cluster, writable bool) (uint32, error) {
	if ctx == nil || ctx != m.ctx {
		return 0, errors.Internal(errors.PhaseMemory, "shadow requested outside its call context")
	}
	if addr, ok := t.View.Address(); ok {
		return addr, nil
	}
	if t.View.Len() == 0 {
		return safecast.Conv[uint32](t.align())
	}
	if c == nil {
		if e, ok := ctx.byView[t.View]; ok {
			e.Writable = e.Writable || writable
			return e.Address, nil
		}
		e, err := m.shadow(ctx, t.View, t.align(), writable)
		if err != nil {
			return 0, err
		}
		return e.Address, nil
	}

	if c.Misaligned {
		for _, mt := range c.Targets {
			if off := mt.start() - c.Start; off%mt.align() != 0 {
				return 0, errors.AlignmentConflict(off, mt.align())
			}
		}
	}
	if c.entry == nil {
		span := m.views.Obtain(t.View.Buffer(), c.Start, c.Len())
		e, err := m.shadow(ctx, span, c.Align, writable)
		if err != nil {
			return 0, err
		}
		c.entry = e
	} else if writable {
		c.entry.Writable = true
	}
	off, err := safecast.Conv[uint32](t.start() - c.Start)
	if err != nil {
		return 0, errors.Internal(errors.PhaseMemory, "target outside its cluster")
	}
	return c.entry.Address + off, nil
}

func (m *Manager) shadow(ctx *Context, target *memory.View, align int, writable bool) (*memory.Entry, error) {
	if m.alloc == nil {
		return nil, errors.New(errors.PhaseMemory, errors.KindForeignRequired).
			Detail("no foreign allocator for shadow memory").
			Build()
	}
	sv, err := m.views.Allocate(target.Len(), align, m.alloc)
	if err != nil {
		return nil, err
	}
	ctx.allocs.add(sv)
	addr, ok := sv.Address()
	if !ok {
		return nil, errors.Internal(errors.PhaseMemory, "shadow allocated outside foreign memory")
	}
	length, err := safecast.Conv[uint32](target.Len())
	if err != nil {
		return nil, err
	}
	e := &memory.Entry{
		Target:   target,
		Shadow:   sv,
		Address:  addr,
		Length:   length,
		Align:    align,
		Writable: writable,
	}
	if err := m.reg.Register(e); err != nil {
		return nil, err
	}
	ctx.entries = append(ctx.entries, e)
	ctx.byView[target] = e
	m.logger.Debug("shadow allocated",
		zap.Uint32("address", addr),
		zap.Int("length", target.Len()),
		zap.Int("align", align),
		zap.Bool("writable", writable))
	return e, nil
}

// UpdateShadows copies host memory into every shadow of ctx.
func (m *Manager) UpdateShadows(ctx *Context) error {
	for _, e := range ctx.entries {
		if err := e.Shadow.Copy(e.Target); err != nil {
			return err
		}
	}
	return nil
}

// UpdateShadowTargets copies writable shadows back into host memory.
func (m *Manager) UpdateShadowTargets(ctx *Context) error {
	for _, e := range ctx.entries {
		if !e.Writable {
			continue
		}
		if err := e.Target.Copy(e.Shadow); err != nil {
			return err
		}
	}
	return nil
}

// FindMemory resolves a foreign address range. Ranges inside a shadow map
// back to the host memory it copies. Anything else is linear memory.
func (m *Manager) FindMemory(address, length uint32) (*memory.View, error) {
	if e := m.reg.Find(address, length); e != nil && e.Target != nil {
		if e.Address == address && e.Length == length {
			return e.Target, nil
		}
		return m.views.Sub(e.Target, int(address-e.Address), int(length))
	}
	return m.views.ForeignView(address, length)
}
