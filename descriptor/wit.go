package descriptor

import (
	"fmt"
	"math"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/objbridge/errors"
)

// TypeName returns the WIT spelling of a primitive type.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "any"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

var primitives = map[string]wit.Type{
	"bool":   wit.Bool{},
	"u8":     wit.U8{},
	"s8":     wit.S8{},
	"u16":    wit.U16{},
	"s16":    wit.S16{},
	"u32":    wit.U32{},
	"s32":    wit.S32{},
	"u64":    wit.U64{},
	"s64":    wit.S64{},
	"f32":    wit.F32{},
	"f64":    wit.F64{},
	"char":   wit.Char{},
	"string": wit.String{},
}

// ParseType maps a WIT primitive name to its type.
func ParseType(name string) (wit.Type, bool) {
	t, ok := primitives[name]
	return t, ok
}

// Coerce converts v to the Go representation of the WIT primitive t.
// Integers are range checked; a nil type passes v through unchanged.
func Coerce(t wit.Type, v any) (any, error) {
	switch t.(type) {
	case nil:
		return v, nil
	case wit.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case wit.String:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case wit.Char:
		switch c := v.(type) {
		case rune:
			return c, nil
		case string:
			r := []rune(c)
			if len(r) == 1 {
				return r[0], nil
			}
		}
	case wit.F32:
		if f, ok := toFloat64(v); ok {
			if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
				return nil, overflow(t, v)
			}
			return float32(f), nil
		}
	case wit.F64:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case wit.S8, wit.S16, wit.S32, wit.S64:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		return narrowSigned(t, v, n)
	case wit.U8, wit.U16, wit.U32, wit.U64:
		n, ok := toUint64(v)
		if !ok {
			break
		}
		return narrowUnsigned(t, v, n)
	default:
		return v, nil
	}
	return nil, mismatch(t, v)
}

func narrowSigned(t wit.Type, orig any, n int64) (any, error) {
	switch t.(type) {
	case wit.S8:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, overflow(t, orig)
		}
		return int8(n), nil
	case wit.S16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, overflow(t, orig)
		}
		return int16(n), nil
	case wit.S32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, overflow(t, orig)
		}
		return int32(n), nil
	}
	return n, nil
}

func narrowUnsigned(t wit.Type, orig any, n uint64) (any, error) {
	switch t.(type) {
	case wit.U8:
		if n > math.MaxUint8 {
			return nil, overflow(t, orig)
		}
		return uint8(n), nil
	case wit.U16:
		if n > math.MaxUint16 {
			return nil, overflow(t, orig)
		}
		return uint16(n), nil
	case wit.U32:
		if n > math.MaxUint32 {
			return nil, overflow(t, orig)
		}
		return uint32(n), nil
	}
	return n, nil
}

// toInt64 accepts any Go integer and integral floats.
func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case float32:
		if v >= float32(math.MinInt64) && v <= float32(math.MaxInt64) && v == float32(int64(v)) {
			return int64(v), true
		}
	case float64:
		if v >= float64(math.MinInt64) && v <= float64(math.MaxInt64) && v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// toUint64 accepts non-negative Go integers and integral floats.
func toUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int, int8, int16, int32, int64:
		n, _ := toInt64(v)
		if n >= 0 {
			return uint64(n), true
		}
	case float32:
		if v >= 0 && float64(v) <= float64(math.MaxUint64) && v == float32(uint64(v)) {
			return uint64(v), true
		}
	case float64:
		if v >= 0 && v <= float64(math.MaxUint64) && v == float64(uint64(v)) {
			return uint64(v), true
		}
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := toInt64(value); ok {
		return float64(n), true
	}
	if n, ok := toUint64(value); ok {
		return float64(n), true
	}
	return 0, false
}

func mismatch(t wit.Type, v any) *errors.Error {
	return errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
		GoType(fmt.Sprintf("%T", v)).
		WitType(TypeName(t)).
		Value(v).
		Detail("cannot convert value").
		Build()
}

func overflow(t wit.Type, v any) *errors.Error {
	return errors.New(errors.PhaseConvert, errors.KindOverflow).
		GoType(fmt.Sprintf("%T", v)).
		WitType(TypeName(t)).
		Value(v).
		Detail("value out of range").
		Build()
}
