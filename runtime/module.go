package runtime

import (
	"context"
	"io"
	"sort"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/structure"
	"github.com/wippyai/wasm-bridge/witmap"
)

// Module is a compiled module together with the structures it describes.
// The structures of a Module live in host memory and are meant for
// inspection; instantiate the module to call into it.
type Module struct {
	runtime  *Runtime
	compiled *engine.Module
	catalog  *structure.Catalog
	types    *structure.Registry
	key      string
}

// Key is the SHA-256 of the module bytes, hex encoded.
func (m *Module) Key() string { return m.key }

// Catalog returns the recorded structure protocol.
func (m *Module) Catalog() *structure.Catalog { return m.catalog }

// Structure returns the structure called name.
func (m *Module) Structure(name string) (*structure.Structure, bool) {
	return m.types.Find(name)
}

// Structures lists structures in definition order.
func (m *Module) Structures() []*structure.Structure {
	return m.types.Structures()
}

// Functions lists callable names as "Owner.function", sorted.
func (m *Module) Functions() []string {
	return functions(m.types)
}

// Exports lists the module's exports.
func (m *Module) Exports() []string { return m.compiled.Exports() }

// Imports lists the module's imports as "module.name".
func (m *Module) Imports() []string { return m.compiled.Imports() }

// InstanceOption configures Instantiate.
type InstanceOption func(*instanceOptions)

type instanceOptions struct {
	name   string
	stdout io.Writer
	stderr io.Writer
}

// WithName names the instance. Names must be unique among live instances.
func WithName(name string) InstanceOption {
	return func(o *instanceOptions) { o.name = name }
}

// WithStdout routes WASI stdout to w.
func WithStdout(w io.Writer) InstanceOption {
	return func(o *instanceOptions) { o.stdout = w }
}

// WithStderr routes WASI stderr to w.
func WithStderr(w io.Writer) InstanceOption {
	return func(o *instanceOptions) { o.stderr = w }
}

// Instantiate runs a new instance of the module.
func (m *Module) Instantiate(ctx context.Context, opts ...InstanceOption) (*Instance, error) {
	var o instanceOptions
	for _, opt := range opts {
		opt(&o)
	}
	cat := &structure.Catalog{}
	envOpts := []env.Option{
		env.WithLogger(m.runtime.logger.Named("env")),
		env.WithRecorder(cat),
	}
	if m.runtime.cfg.BigEndian {
		envOpts = append(envOpts, env.WithBigEndian())
	}
	inst, err := m.compiled.Instantiate(ctx, engine.InstanceConfig{
		Name:   o.name,
		Stdout: o.stdout,
		Stderr: o.stderr,
	}, envOpts...)
	if err != nil {
		return nil, err
	}
	return &Instance{module: m, inst: inst, catalog: cat}, nil
}

// Close releases the compiled module. Instances already running are not
// affected.
func (m *Module) Close(ctx context.Context) error {
	m.runtime.forget(m.key)
	return m.compiled.Close(ctx)
}

// Instance is a running module. It is NOT safe for concurrent use.
type Instance struct {
	module  *Module
	inst    *engine.Instance
	catalog *structure.Catalog
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module { return i.module }

// Env returns the marshaling environment of the instance.
func (i *Instance) Env() *env.Environment { return i.inst.Env() }

// Structure returns the structure called name. Its objects live in the
// instance.
func (i *Instance) Structure(name string) (*structure.Structure, bool) {
	return i.inst.Env().Registry().Find(name)
}

// Structures lists structures in definition order.
func (i *Instance) Structures() []*structure.Structure {
	return i.inst.Env().Registry().Structures()
}

// Function resolves name to a function object. Accepted forms are
// "Owner.fn", the WIT form "[static]owner.fn", and a bare "fn" when exactly
// one structure defines it.
func (i *Instance) Function(name string) (*structure.Object, error) {
	owner, fn, err := findFunction(i.inst.Env().Registry(), name)
	if err != nil {
		return nil, err
	}
	obj, _ := owner.Method(fn)
	return obj, nil
}

// Call invokes the function name with args. A trailing env.CallOptions
// configures the call.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, err := i.Function(name)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, args...)
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.inst.Close(ctx)
}

func functions(r *structure.Registry) []string {
	var out []string
	for _, s := range r.Structures() {
		for _, name := range s.Methods() {
			out = append(out, s.Name+"."+name)
		}
	}
	sort.Strings(out)
	return out
}

func findFunction(r *structure.Registry, name string) (*structure.Structure, string, error) {
	ownerName, fnName := witmap.SplitName(name)
	var (
		owner *structure.Structure
		fn    string
		found int
	)
	for _, s := range r.Structures() {
		if ownerName != "" && !witmap.SameName(s.Name, ownerName) {
			continue
		}
		for _, method := range s.Methods() {
			if method == fnName || witmap.SameName(method, fnName) {
				owner, fn = s, method
				found++
			}
		}
	}
	switch {
	case found == 0:
		return nil, "", errors.NotFound(errors.PhaseCall, "function", name)
	case found > 1:
		return nil, "", errors.InvalidInput(errors.PhaseCall, "function name "+name+" is ambiguous; qualify it as Owner.function")
	}
	return owner, fn, nil
}
