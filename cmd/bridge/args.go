package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/structure"
)

// params returns the parameters a caller supplies for fn, skipping those
// the environment synthesizes.
func params(fn *structure.Structure) []*structure.Member {
	args := fn.ArgStruct()
	if args == nil {
		return nil
	}
	var out []*structure.Member
	for _, p := range args.Params() {
		if p.Structure != nil && p.Structure.Purpose != structure.PurposeNone {
			continue
		}
		out = append(out, p)
	}
	return out
}

// convertArg parses a command line value for parameter m.
func convertArg(value string, m *structure.Member) (any, error) {
	switch m.Type {
	case structure.MemberBool:
		return strconv.ParseBool(value)
	case structure.MemberInt:
		if m.BitSize > 64 {
			return parseBig(value)
		}
		return strconv.ParseInt(value, 0, 64)
	case structure.MemberUint:
		if m.BitSize > 64 {
			return parseBig(value)
		}
		return strconv.ParseUint(value, 0, 64)
	case structure.MemberFloat:
		return strconv.ParseFloat(value, 64)
	case structure.MemberObject:
		return convertObject(value, m.Structure)
	}
	return value, nil
}

func convertObject(value string, s *structure.Structure) (any, error) {
	if s == nil {
		return value, nil
	}
	switch s.Kind {
	case structure.KindPrimitive:
		if elem := s.Element(); elem != nil {
			return convertArg(value, elem)
		}
	case structure.KindEnum, structure.KindErrorSet:
		if n, err := strconv.ParseInt(value, 0, 64); err == nil {
			return n, nil
		}
		return value, nil
	case structure.KindPointer:
		target := s.TargetStructure()
		if target != nil && target.Flags.Has(structure.FlagString) {
			return value, nil
		}
		if target != nil && target.Kind == structure.KindPrimitive {
			return convertObject(value, target)
		}
	case structure.KindArray, structure.KindSlice:
		if s.Flags.Has(structure.FlagString) {
			return value, nil
		}
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s expects JSON: %w", s, err)
	}
	return fromJSON(v), nil
}

// fromJSON turns json.Number into int64 or float64 so structures accept it.
func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = fromJSON(e)
		}
	case []any:
		for i, e := range x {
			x[i] = fromJSON(e)
		}
	}
	return v
}

func parseBig(value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

// formatResult renders a call result, waiting for promises and draining
// generators.
func formatResult(ctx context.Context, v any) (string, error) {
	switch x := v.(type) {
	case *env.Promise:
		r, err := x.Wait(ctx)
		if err != nil {
			return "", err
		}
		return formatResult(ctx, r)
	case *env.Generator:
		items, err := x.Collect(ctx)
		if err != nil {
			return "", err
		}
		parts := make([]string, len(items))
		for i, it := range items {
			if parts[i], err = formatResult(ctx, it); err != nil {
				return "", err
			}
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case *structure.Object:
		val, err := x.Value()
		if err != nil {
			return "", err
		}
		if val == any(x) {
			return x.String(), nil
		}
		return formatResult(ctx, val)
	case nil:
		return "void", nil
	}
	return fmt.Sprintf("%v", v), nil
}
