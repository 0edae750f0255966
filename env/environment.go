package env

import (
	"context"
	"encoding/binary"

	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memory"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/shadow"
	"github.com/wippyai/wasm-bridge/structure"
)

// ThunkRunner executes a thunk in the foreign module. The thunk calls
// function fn with the argument struct at address args. A non-zero status
// reports failure; it is an error number when the module has one to give.
type ThunkRunner interface {
	RunThunk(ctx context.Context, thunk, fn, args uint32) (status uint32, err error)
}

// Environment is the marshaling engine for one loaded module. It implements
// structure.Runtime, owns the view cache, the shadow registrations and the
// handle table, and is not safe for concurrent use.
type Environment struct {
	views    *memory.Manager
	alloc    memory.Allocator
	shadows  *shadow.Manager
	registry *structure.Registry
	runner   ThunkRunner
	table    *resource.Table
	logger   *zap.Logger
	order    binary.ByteOrder
}

type config struct {
	logger   *zap.Logger
	registry []structure.Option
	big      bool
}

// Option configures an Environment.
type Option func(*config)

// WithLogger sets the logger for calls, shadows and async callbacks.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithBigEndian makes the module's memory big-endian.
func WithBigEndian() Option {
	return func(c *config) {
		c.big = true
		c.registry = append(c.registry, structure.WithBigEndian())
	}
}

// WithRecorder records the structure protocol into cat.
func WithRecorder(cat *structure.Catalog) Option {
	return func(c *config) { c.registry = append(c.registry, structure.WithRecorder(cat)) }
}

// New creates an environment over a module's memory and allocator. With a
// nil mem the environment is host-only: objects live in Go memory and calls
// are unsupported.
func New(mem wasmbridge.Memory, alloc wasmbridge.Allocator, runner ThunkRunner, opts ...Option) *Environment {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Environment{
		views:  memory.NewManager(mem),
		runner: runner,
		table:  resource.NewTable(),
		logger: cfg.logger,
		order:  binary.LittleEndian,
	}
	if cfg.big {
		e.order = binary.BigEndian
	}
	if mem != nil && alloc != nil {
		e.alloc = memory.NewForeignAllocator(e.views, alloc)
	}
	e.shadows = shadow.NewManager(e.views, e.alloc, shadow.WithLogger(e.logger.Named("shadow")))
	e.registry = structure.NewRegistry(e, append(cfg.registry, structure.WithLogger(e.logger.Named("structure")))...)
	e.table.Subscribe(handleLog{e.logger.Named("handles")})

	// An abandoned call context still holds shadow memory.
	e.table.Defer(func() {
		for e.shadows.Context() != nil {
			if err := e.shadows.EndContext(); err != nil {
				e.logger.Warn("release shadows", zap.Error(err))
			}
		}
	})
	return e
}

// Registry returns the structure registry bound to this environment.
func (e *Environment) Registry() *structure.Registry { return e.registry }

// Views returns the view manager.
func (e *Environment) Views() *memory.Manager { return e.views }

// Allocator returns the module allocator, nil for a host-only environment.
func (e *Environment) Allocator() memory.Allocator {
	if e.alloc == nil {
		return nil
	}
	return e.alloc
}

// Shadows returns the shadow manager.
func (e *Environment) Shadows() *shadow.Manager { return e.shadows }

// Table returns the handle table.
func (e *Environment) Table() *resource.Table { return e.table }

// Logger returns the environment logger.
func (e *Environment) Logger() *zap.Logger { return e.logger }

// FindMemory resolves a foreign address range, mapping shadow memory back
// to the host memory it copies.
func (e *Environment) FindMemory(address, length uint32) (*memory.View, error) {
	return e.shadows.FindMemory(address, length)
}

// Close runs every registered destructor once. Pending promises and
// generators fail with a closed error. Calling Close again does nothing.
func (e *Environment) Close() error {
	if e.table.Closed() {
		return nil
	}
	e.table.Each(func(h resource.Handle, k resource.Kind, _ any) bool {
		if k != resource.KindDestructor {
			e.logger.Debug("dropping live handle", zap.Uint32("handle", uint32(h)), zap.Stringer("kind", k))
		}
		return true
	})
	return e.table.Close()
}

func closedError() error {
	return errors.New(errors.PhaseCall, errors.KindClosed).
		Detail("environment is closed").
		Build()
}

// words reads n consecutive u32 values at address.
func (e *Environment) words(address uint32, n int) ([]uint32, error) {
	v, err := e.views.ForeignView(address, uint32(4*n))
	if err != nil {
		return nil, err
	}
	b, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = e.order.Uint32(b[4*i:])
	}
	return out, nil
}

// putWord writes a u32 at address+4*index.
func (e *Environment) putWord(address uint32, index int, w uint32) error {
	v, err := e.views.ForeignView(address+uint32(4*index), 4)
	if err != nil {
		return err
	}
	b, err := v.Bytes()
	if err != nil {
		return err
	}
	e.order.PutUint32(b, w)
	return nil
}
