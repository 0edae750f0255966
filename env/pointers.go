package env

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/memory"
	"github.com/wippyai/wasm-bridge/shadow"
	"github.com/wippyai/wasm-bridge/structure"
)

// pointerWalk collects every pointer reachable from a root once, following
// the targets of pointers it has seen.
type pointerWalk struct {
	opts     structure.VisitOptions
	seen     map[*structure.Object]bool
	expanded map[*structure.Object]bool
	visit    func(ptr *structure.Object) (*structure.Object, error)
}

func newPointerWalk(opts structure.VisitOptions, visit func(*structure.Object) (*structure.Object, error)) *pointerWalk {
	return &pointerWalk{
		opts:     opts,
		seen:     make(map[*structure.Object]bool),
		expanded: make(map[*structure.Object]bool),
		visit:    visit,
	}
}

func (w *pointerWalk) run(root *structure.Object) error {
	if root.Structure().Kind == structure.KindPointer {
		return w.collect(root, true)
	}
	return root.VisitPointers(w.collect, w.opts)
}

func (w *pointerWalk) collect(ptr *structure.Object, active bool) error {
	if w.seen[ptr] {
		return nil
	}
	w.seen[ptr] = true
	t, err := w.visit(ptr)
	if err != nil {
		return err
	}
	if t == nil || w.expanded[t] || !t.Structure().HasPointer() {
		return nil
	}
	w.expanded[t] = true
	return t.VisitPointers(w.collect, w.opts)
}

// UpdatePointerAddresses gives every pointer reachable from root an address
// the foreign side can follow. Foreign targets keep their own address. Host
// targets get shadow memory in ctx; overlapping host targets share one
// shadow so the module sees the same aliasing the host does.
func (e *Environment) UpdatePointerAddresses(ctx *shadow.Context, root *structure.Object) error {
	var ptrs []*structure.Object
	w := newPointerWalk(structure.VisitOptions{
		IgnoreInactive:  true,
		IgnoreUncreated: true,
		IgnoreRetval:    true,
	}, func(ptr *structure.Object) (*structure.Object, error) {
		t := ptr.CachedTarget()
		if t != nil {
			ptrs = append(ptrs, ptr)
		}
		return t, nil
	})
	if err := w.run(root); err != nil {
		return err
	}
	if len(ptrs) == 0 {
		return nil
	}

	targets := make(map[*memory.View]*shadow.Target)
	writable := make(map[*memory.View]bool)
	var host []*shadow.Target
	for _, ptr := range ptrs {
		v := ptr.CachedTarget().View()
		if _, ok := targets[v]; !ok {
			t := &shadow.Target{View: v, Align: ptr.CachedTarget().Structure().Align}
			targets[v] = t
			if !v.Foreign() {
				host = append(host, t)
			}
		}
		if !ptr.Structure().Flags.Has(structure.FlagConst) {
			writable[v] = true
		}
	}
	clusters := shadow.Index(shadow.FindTargetClusters(shadow.GroupByBuffer(host)))

	for _, ptr := range ptrs {
		target := ptr.CachedTarget()
		t := targets[target.View()]
		addr, err := e.shadows.ShadowAddress(ctx, t, clusters[t], writable[t.View])
		if err != nil {
			return err
		}
		if err := ptr.SetAddress(addr, structure.TargetLength(target)); err != nil {
			return err
		}
	}
	e.logger.Debug("pointer addresses updated",
		zap.Int("pointers", len(ptrs)),
		zap.Int("targets", len(targets)),
		zap.Int("host", len(host)))
	return nil
}

// UpdatePointerTargets re-reads every pointer reachable from root after a
// call. A pointer whose address or length changed since it was last seen
// gets a new target; the others keep theirs. Pointers that store no length
// are compared by address only. With ignoreReturn the return
// value of an argument struct is skipped.
func (e *Environment) UpdatePointerTargets(ctx *shadow.Context, root *structure.Object, ignoreReturn bool) error {
	changed := 0
	w := newPointerWalk(structure.VisitOptions{
		Vivificate:     true,
		IgnoreInactive: true,
		IgnoreRetval:   ignoreReturn,
	}, func(ptr *structure.Object) (*structure.Object, error) {
		addr, length, err := ptr.Address()
		if err != nil {
			return nil, err
		}
		last, lastLen, ok := ptr.LastAddress()
		if ok && last == addr && (lastLen == length || !ptr.Structure().KnownLength()) {
			return ptr.CachedTarget(), nil
		}
		if !ok && addr == 0 && ptr.CachedTarget() == nil {
			return nil, nil
		}
		t, err := ptr.Resolve(addr, length)
		if err != nil {
			return nil, err
		}
		ptr.Retarget(t)
		if err := ptr.SetAddress(addr, length); err != nil {
			return nil, err
		}
		changed++
		return t, nil
	})
	if err := w.run(root); err != nil {
		return err
	}
	if changed > 0 {
		e.logger.Debug("pointer targets updated", zap.Int("changed", changed))
	}
	return nil
}
