package env

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/shadow"
	"github.com/wippyai/wasm-bridge/structure"
)

// Call invokes a foreign function object. A trailing CallOptions supplies
// special parameters. Functions that take a promise or generator return a
// *Promise or *Generator; everything else returns the unwrapped result.
func (e *Environment) Call(ctx context.Context, fn *structure.Object, args []any) (any, error) {
	if e.table.Closed() {
		return nil, closedError()
	}
	if e.runner == nil {
		return nil, errors.Unsupported(errors.PhaseCall, "environment has no foreign module to call into")
	}
	thunk, index, err := fn.Thunk()
	if err != nil {
		return nil, err
	}
	as := fn.Structure().ArgStruct()
	if as == nil {
		return nil, errors.New(errors.PhaseCall, errors.KindInvalidData).
			Structure(fn.Structure().String()).
			Detail("function without an argument structure").
			Build()
	}
	name := fn.Structure().Name

	opts, values := splitOptions(args)
	argObj, err := as.New(nil, structure.InHostMemory())
	if err != nil {
		return nil, err
	}
	inv, err := e.CopyArguments(ctx, name, argObj, values, opts)
	if err != nil {
		return nil, err
	}

	ret, err := e.InvokeThunk(ctx, thunk, index, argObj)
	if err != nil {
		inv.fail(err)
		return nil, err
	}
	return inv.complete(ret), nil
}

// InvokeThunk runs one foreign call with args as the argument struct.
// Before the call every host object reachable from args is given a shadow
// in foreign memory and pointers are rewritten to the shadows. Afterwards
// the shadows are copied back and pointers the module changed are
// re-resolved. Calls may nest; shadows live until the outermost call ends.
func (e *Environment) InvokeThunk(ctx context.Context, thunk, fn uint32, args *structure.Object) (ret any, err error) {
	sc := e.shadows.StartContext()
	defer func() {
		if endErr := e.shadows.EndContext(); endErr != nil {
			if err == nil {
				err = endErr
			} else {
				e.logger.Warn("release shadows", zap.Error(endErr))
			}
		}
	}()

	if err := e.UpdatePointerAddresses(sc, args); err != nil {
		return nil, err
	}
	address, err := e.argsAddress(sc, args)
	if err != nil {
		return nil, err
	}
	if err := e.shadows.UpdateShadows(sc); err != nil {
		return nil, err
	}

	e.logger.Debug("call",
		zap.String("args", args.Structure().String()),
		zap.Uint32("thunk", thunk),
		zap.Uint32("fn", fn),
		zap.Uint32("address", address),
		zap.Int("depth", sc.Depth()))

	status, runErr := e.runner.RunThunk(ctx, thunk, fn, address)

	// The module may have written through pointers even when it failed.
	if err := e.shadows.UpdateShadowTargets(sc); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, errors.NativeCall(status, runErr)
	}
	if status != 0 {
		if ev, ok := e.registry.ErrorByNumber(uint64(status)); ok {
			return nil, ev
		}
		return nil, errors.NativeCall(status, nil)
	}

	if err := e.UpdatePointerTargets(sc, args, false); err != nil {
		return nil, err
	}
	return args.ReturnValue()
}

// argsAddress places the argument struct itself where the module can read
// it.
func (e *Environment) argsAddress(sc *shadow.Context, args *structure.Object) (uint32, error) {
	v := args.View()
	if addr, ok := v.Address(); ok {
		return addr, nil
	}
	t := &shadow.Target{View: v, Align: args.Structure().Align}
	return e.shadows.ShadowAddress(sc, t, nil, true)
}
