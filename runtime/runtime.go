package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/structure"
)

// Runtime loads modules onto one engine. It is safe for concurrent use.
type Runtime struct {
	engine   *engine.Engine
	cache    wazero.CompilationCache
	logger   *zap.Logger
	modules  map[string]*Module
	group    singleflight.Group
	cfg      Config
	cacheDir string
	mu       sync.Mutex
	closed   bool
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	cfg    Config
	logger *zap.Logger
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger overrides the logger built from Config.Log.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCacheDir sets Config.CacheDir.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cfg.CacheDir = dir }
}

// New creates a runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		l, err := o.cfg.logger()
		if err != nil {
			return nil, err
		}
		o.logger = l
	}

	r := &Runtime{
		cfg:     o.cfg,
		logger:  o.logger,
		modules: make(map[string]*Module),
	}
	if o.cfg.CacheDir != "" {
		dir, err := expandHome(o.cfg.CacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cache_dir")
		}
		r.cacheDir = dir
		r.cache, err = wazero.NewCompilationCacheWithDir(filepath.Join(dir, "code"))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create compilation cache")
		}
	}
	engine.SetLogger(r.logger.Named("engine"))
	r.engine = engine.New(ctx, engine.Config{
		MemoryLimitPages: o.cfg.MemoryLimitPages,
		EnableWASI:       o.cfg.WASI,
		Cache:            r.cache,
	})
	return r, nil
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger { return r.logger }

// Config returns the configuration the runtime was created with.
func (r *Runtime) Config() Config { return r.cfg }

// Load compiles wasm and collects the structures it describes. Loading the
// same bytes again, or concurrently, returns the same Module.
func (r *Runtime) Load(ctx context.Context, wasm []byte) (*Module, error) {
	key := moduleKey(wasm)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New(errors.PhaseLoad, errors.KindClosed).Detail("runtime is closed").Build()
	}
	if m, ok := r.modules[key]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	v, err, shared := r.group.Do(key, func() (any, error) {
		m, err := r.load(ctx, key, wasm)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.modules[key] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("shared module load", zap.String("module", key[:12]))
	}
	return v.(*Module), nil
}

func (r *Runtime) load(ctx context.Context, key string, wasm []byte) (*Module, error) {
	compiled, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	m := &Module{runtime: r, compiled: compiled, key: key}

	cat, err := r.readCatalog(key)
	if err == nil && cat != nil {
		m.types, err = replay(cat, r.cfg.BigEndian)
	}
	if err != nil {
		r.logger.Warn("discarding cached catalog", zap.String("module", key[:12]), zap.Error(err))
		cat, m.types = nil, nil
	}
	if cat == nil {
		if cat, err = r.describe(ctx, m); err != nil {
			_ = compiled.Close(ctx)
			return nil, err
		}
		if m.types, err = replay(cat, r.cfg.BigEndian); err != nil {
			_ = compiled.Close(ctx)
			return nil, err
		}
		if err := r.writeCatalog(key, cat); err != nil {
			r.logger.Warn("cache catalog", zap.String("module", key[:12]), zap.Error(err))
		}
	}
	m.catalog = cat
	r.logger.Debug("module loaded",
		zap.String("module", key[:12]),
		zap.Int("structures", len(m.types.Structures())))
	return m, nil
}

// describe records the structures m describes by running its initializer
// once.
func (r *Runtime) describe(ctx context.Context, m *Module) (*structure.Catalog, error) {
	inst, err := m.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	if err := inst.Close(ctx); err != nil {
		r.logger.Warn("close describing instance", zap.Error(err))
	}
	return inst.catalog, nil
}

// LoadFile reads and loads a module file.
func (r *Runtime) LoadFile(ctx context.Context, path string) (*Module, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	return r.Load(ctx, wasm)
}

// LoadFiles loads several module files in parallel. Results follow the
// order of paths; the first failure cancels the rest.
func (r *Runtime) LoadFiles(ctx context.Context, jobs int, paths ...string) ([]*Module, error) {
	if jobs <= 0 {
		jobs = 1
	}
	mods := make([]*Module, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, max(len(paths), 1)))
	for i, path := range paths {
		g.Go(func() error {
			m, err := r.LoadFile(gctx, path)
			if err != nil {
				return err
			}
			mods[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mods, nil
}

// Close releases every module and instance loaded through the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.modules = nil
	r.mu.Unlock()

	err := r.engine.Close(ctx)
	if r.cache != nil {
		if cerr := r.cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	_ = r.logger.Sync()
	return err
}

func (r *Runtime) forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, key)
}

// moduleKey identifies module bytes in both the module map and the catalog
// cache.
func moduleKey(wasm []byte) string {
	sum := sha256.Sum256(wasm)
	return hex.EncodeToString(sum[:])
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}
