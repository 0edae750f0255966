package accessor

import (
	"math"
	"math/big"
	"reflect"

	"fortio.org/safecast"

	"github.com/wippyai/wasm-bridge/errors"
)

// ToInt64 converts a Go number to int64, failing on fractions and overflow.
func ToInt64(v any) (int64, error) {
	switch n := normalize(v).(type) {
	case int64:
		return n, nil
	case uint64:
		i, err := safecast.Conv[int64](n)
		if err != nil {
			return 0, errors.Overflow(errors.PhaseAccess, v, "int64")
		}
		return i, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "integer")
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, errors.Overflow(errors.PhaseAccess, v, "int64")
		}
		return int64(n), nil
	case *big.Int:
		if !n.IsInt64() {
			return 0, errors.Overflow(errors.PhaseAccess, v, "int64")
		}
		return n.Int64(), nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "integer")
	}
}

// ToUint64 converts a Go number to uint64, failing on negatives, fractions and overflow.
func ToUint64(v any) (uint64, error) {
	switch n := normalize(v).(type) {
	case int64:
		u, err := safecast.Conv[uint64](n)
		if err != nil {
			return 0, errors.Overflow(errors.PhaseAccess, v, "uint64")
		}
		return u, nil
	case uint64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "integer")
		}
		if n < 0 || n >= math.MaxUint64 {
			return 0, errors.Overflow(errors.PhaseAccess, v, "uint64")
		}
		return uint64(n), nil
	case *big.Int:
		if !n.IsUint64() {
			return 0, errors.Overflow(errors.PhaseAccess, v, "uint64")
		}
		return n.Uint64(), nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "integer")
	}
}

// ToBigInt converts a Go number to a new big.Int.
func ToBigInt(v any) (*big.Int, error) {
	switch n := normalize(v).(type) {
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "integer")
		}
		i, _ := big.NewFloat(n).Int(nil)
		return i, nil
	case *big.Int:
		return new(big.Int).Set(n), nil
	default:
		return nil, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "integer")
	}
}

// ToFloat64 converts a Go number to float64.
func ToFloat64(v any) (float64, error) {
	switch n := normalize(v).(type) {
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseAccess, "", nil, v, "number")
	}
}

// IsNumber reports whether v is a Go number this package can convert.
func IsNumber(v any) bool {
	switch normalize(v).(type) {
	case int64, uint64, float64, *big.Int:
		return true
	}
	return false
}

// normalize reduces every integer and float type, named or not, to int64,
// uint64 or float64. Other values are returned unchanged.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case uintptr:
		return uint64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case *big.Int:
		if n == nil {
			return nil
		}
		return n
	case nil, bool, string, []byte:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}
