package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/runtime"
)

var callCmd = &cobra.Command{
	Use:   "call [flags] file.wasm function [args...]",
	Short: "Call a function of a module",
	Long: `Call instantiates a module and calls one of its functions. Arguments are
parsed according to the parameter types: numbers and booleans as literals,
strings as given, everything else as JSON.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().Duration("timeout", 0, "abort the call after this long")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	mod, err := rt.LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	inst, err := mod.Instantiate(ctx, runtime.WithStdout(os.Stdout), runtime.WithStderr(os.Stderr))
	if err != nil {
		return err
	}
	defer inst.Close(context.Background())

	start := time.Now()
	result, err := call(ctx, inst, args[1], args[2:])
	if err != nil {
		return err
	}
	fmt.Println(result)
	rt.Logger().Debug("call finished",
		zap.String("function", args[1]),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// call resolves name, converts the textual args and renders the result.
func call(ctx context.Context, inst *runtime.Instance, name string, args []string) (string, error) {
	fn, err := inst.Function(name)
	if err != nil {
		return "", err
	}
	ps := params(fn.Structure())
	if len(args) != len(ps) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", name, len(ps), len(args))
	}
	values := make([]any, 0, len(args)+1)
	for i, p := range ps {
		v, err := convertArg(args[i], p)
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", p.Name, err)
		}
		values = append(values, v)
	}
	values = append(values, env.CallOptions{Signal: ctx, Reader: os.Stdin, Writer: os.Stdout})
	result, err := fn.Call(ctx, values...)
	if err != nil {
		return "", err
	}
	return formatResult(ctx, result)
}
