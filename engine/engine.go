package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Engine owns a wazero runtime shared by every module it loads.
type Engine struct {
	runtime      wazero.Runtime
	cfg          Config
	hostMu       sync.Mutex
	hostDone     atomic.Bool
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool

	// EnableWASI instantiates wasi_snapshot_preview1 before the first module.
	// Modules built for wasm32-wasi import it even when they do no I/O.
	EnableWASI bool

	// Cache, when set, is shared compiled code. The caller closes it after
	// the engine.
	Cache wazero.CompilationCache
}

// New creates an engine with the given configuration.
func New(ctx context.Context, cfg Config) *Engine {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.Cache != nil {
		runtimeCfg = runtimeCfg.WithCompilationCache(cfg.Cache)
	}
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     cfg,
	}
}

// Close releases the runtime and every instance created from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls from multiple modules sharing the same engine.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}
	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()
	if e.wasiInitDone.Load() {
		return nil
	}
	if e.runtime.Module(wasiModule) == nil {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil && e.runtime.Module(wasiModule) == nil {
			return errors.Load("instantiate WASI", err)
		}
	}
	e.wasiInitDone.Store(true)
	return nil
}

// initHost instantiates the bridge host module once per runtime.
func (e *Engine) initHost(ctx context.Context) error {
	if e.hostDone.Load() {
		return nil
	}
	e.hostMu.Lock()
	defer e.hostMu.Unlock()
	if e.hostDone.Load() {
		return nil
	}
	if _, err := buildHostModule(e.runtime).Instantiate(ctx); err != nil {
		return errors.Load("instantiate host module "+HostModule, err)
	}
	e.hostDone.Store(true)
	return nil
}

// Compile validates and compiles a module. The module must import only
// from the bridge host module, and WASI when the engine enables it.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}
	m := &Module{engine: e, compiled: compiled}
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		switch mod {
		case HostModule:
			if !knownImport(name) {
				compiled.Close(ctx)
				return nil, errors.Load(fmt.Sprintf("unknown host import %s.%s", mod, name), nil)
			}
		case wasiModule:
			m.wasi = true
		default:
			compiled.Close(ctx)
			return nil, errors.Load(fmt.Sprintf("unresolvable import %s.%s", mod, name), nil)
		}
	}
	if m.wasi && !e.cfg.EnableWASI {
		compiled.Close(ctx)
		return nil, errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Detail("module imports %s but WASI is disabled", wasiModule).
			Build()
	}
	Logger().Debug("module compiled",
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Bool("wasi", m.wasi))
	return m, nil
}

// Module is a compiled module that can be instantiated any number of times.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	wasi     bool
}

// Exports lists the exported function names in sorted order.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Imports lists imported functions as module.name.
func (m *Module) Imports() []string {
	defs := m.compiled.ImportedFunctions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		mod, name, _ := def.Import()
		names = append(names, mod+"."+name)
	}
	return names
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name   string
	Stdout io.Writer
	Stderr io.Writer
}

func (m *Module) moduleConfig(cfg InstanceConfig) wazero.ModuleConfig {
	modConfig := wazero.NewModuleConfig().
		WithName(cfg.Name). // empty means anonymous, so instances can coexist
		WithStartFunctions()
	if cfg.Stdout != nil {
		modConfig = modConfig.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modConfig = modConfig.WithStderr(cfg.Stderr)
	}
	return modConfig
}
