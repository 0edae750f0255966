package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/errors"
)

// Instance is a running module together with the environment that
// marshals calls into it. It is NOT safe for concurrent use.
type Instance struct {
	module    api.Module
	memory    *Memory
	alloc     *allocator
	env       *env.Environment
	runThunk  api.Function
	defineErr error
}

// Instantiate runs a fresh instance and collects the structures it
// describes. opts configure the environment.
func (m *Module) Instantiate(ctx context.Context, cfg InstanceConfig, opts ...env.Option) (*Instance, error) {
	if m.wasi {
		if err := m.engine.InitWASI(ctx); err != nil {
			return nil, err
		}
	}
	if err := m.engine.initHost(ctx); err != nil {
		return nil, err
	}

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, m.moduleConfig(cfg))
	if err != nil {
		return nil, errors.Load("instantiate failed", err)
	}
	i := &Instance{module: mod}
	if mem := mod.ExportedMemory(exportMemory); mem != nil {
		i.memory = &Memory{mem: mem}
	} else if mem := mod.Memory(); mem != nil {
		i.memory = &Memory{mem: mem}
	}
	if i.memory == nil {
		_ = mod.Close(ctx)
		return nil, errors.Load("module exports no memory", nil)
	}

	var (
		alloc  wasmbridge.Allocator
		runner env.ThunkRunner
	)
	if fn := mod.ExportedFunction(exportAlloc); fn != nil {
		i.alloc = &allocator{allocFn: fn, freeFn: mod.ExportedFunction(exportFree)}
		alloc = i.alloc
	}
	if fn := mod.ExportedFunction(exportRunThunk); fn != nil {
		i.runThunk = fn
		runner = i
	}
	opts = append([]env.Option{env.WithLogger(Logger().Named("env"))}, opts...)
	i.env = env.New(i.memory, alloc, runner, opts...)

	if err := i.initialize(ctx); err != nil {
		_ = i.Close(ctx)
		return nil, err
	}
	return i, nil
}

// initialize runs the reactor initializer, then bridge_init, and finalizes
// the structures the module described.
func (i *Instance) initialize(ctx context.Context) error {
	ctx = withInstance(ctx, i)
	if fn := i.module.ExportedFunction(exportReactor); fn != nil {
		if _, err := fn.Call(ctx); err != nil {
			return errors.Load(exportReactor+" failed", err)
		}
	}
	fn := i.module.ExportedFunction(exportInit)
	if fn == nil {
		return errors.Load(fmt.Sprintf("module does not export %s", exportInit), nil)
	}
	i.setContext(ctx)
	_, err := fn.Call(ctx)
	i.setContext(nil)
	if err != nil {
		return errors.Load(exportInit+" failed", err)
	}
	if i.defineErr != nil {
		return errors.Load("module described invalid structures", i.defineErr)
	}
	if err := i.env.Registry().FinalizeAll(); err != nil {
		return errors.Load("finalize structures", err)
	}
	Logger().Debug("module initialized",
		zap.Int("structures", len(i.env.Registry().Structures())),
		zap.Uint32("memory", i.memory.Size()))
	return nil
}

// Env returns the environment bound to this instance.
func (i *Instance) Env() *env.Environment { return i.env }

// Memory returns the instance memory.
func (i *Instance) Memory() *Memory { return i.memory }

// RunThunk implements env.ThunkRunner over bridge_run_thunk.
func (i *Instance) RunThunk(ctx context.Context, thunk, fn, args uint32) (uint32, error) {
	if i.module == nil {
		return 0, errors.New(errors.PhaseCall, errors.KindClosed).Detail("instance is closed").Build()
	}
	ctx = withInstance(ctx, i)
	prev := i.setContext(ctx)
	defer i.setContext(prev)

	stack := []uint64{uint64(thunk), uint64(fn), uint64(args)}
	if err := i.runThunk.CallWithStack(ctx, stack); err != nil {
		return 0, err
	}
	return uint32(stack[0]), nil
}

// setContext points the allocator at the call in progress so allocations
// made from inside it observe the same cancellation.
func (i *Instance) setContext(ctx context.Context) context.Context {
	if i.alloc == nil {
		return nil
	}
	return i.alloc.setContext(ctx)
}

// Close releases the environment and the module instance.
func (i *Instance) Close(ctx context.Context) error {
	var firstErr error
	if i.env != nil {
		if err := i.env.Close(); err != nil {
			firstErr = err
		}
	}
	if i.module != nil {
		if err := i.module.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.module = nil
	}
	i.alloc = nil
	i.runThunk = nil
	return firstErr
}

// allocator implements wasmbridge.Allocator over bridge_alloc and
// bridge_free.
type allocator struct {
	allocFn    api.Function
	freeFn     api.Function
	currentCtx context.Context
	mu         sync.Mutex
}

func (a *allocator) setContext(ctx context.Context) context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.currentCtx
	a.currentCtx = ctx
	return prev
}

func (a *allocator) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentCtx == nil {
		return context.Background()
	}
	return a.currentCtx
}

func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	stack := []uint64{uint64(size), uint64(align)}
	if err := a.allocFn.CallWithStack(a.context(), stack); err != nil {
		return 0, err
	}
	ptr := uint32(stack[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("%s returned null for %d bytes", exportAlloc, size)
	}
	return ptr, nil
}

func (a *allocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	stack := []uint64{uint64(ptr), uint64(size), uint64(align)}
	if err := a.freeFn.CallWithStack(a.context(), stack); err != nil {
		Logger().Warn("free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// Memory wraps wazero memory to implement wasmbridge.Memory
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var (
	_ wasmbridge.Memory    = (*Memory)(nil)
	_ wasmbridge.Allocator = (*allocator)(nil)
	_ env.ThunkRunner      = (*Instance)(nil)
)
