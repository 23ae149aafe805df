package db

import (
	"time"
)

// Bindable is implemented by types that supply their own storage
// representation when bound as a statement parameter.
type Bindable interface {
	DatabaseValue() Value
}

// BindValue converts a native Go value into its storage representation.
// The conversion is total for the supported set; an unsupported dynamic
// type is a misuse-coded error. Rules:
//
//   - nil and nil []byte bind NULL
//   - all signed integer widths and uint8/16/32 widen to the integer
//     storage class
//   - uint and uint64 are reinterpreted bit-for-bit as int64, so the
//     original bit pattern survives a round trip through the engine
//   - bool binds as integer 0 or 1
//   - float32/float64 bind as the real storage class
//   - time.Time binds as text in TimeLayout, UTC
func BindValue(arg any) (Value, error) {
	if arg == nil {
		return Null(), nil
	}
	switch v := arg.(type) {
	case Value:
		return v, nil
	case Bindable:
		return v.DatabaseValue(), nil
	case bool:
		if v {
			return Integer(1), nil
		}
		return Integer(0), nil
	case int:
		return Integer(int64(v)), nil
	case int8:
		return Integer(int64(v)), nil
	case int16:
		return Integer(int64(v)), nil
	case int32:
		return Integer(int64(v)), nil
	case int64:
		return Integer(v), nil
	case uint8:
		return Integer(int64(v)), nil
	case uint16:
		return Integer(int64(v)), nil
	case uint32:
		return Integer(int64(v)), nil
	case uint:
		return Integer(int64(v)), nil
	case uint64:
		return Integer(int64(v)), nil
	case float32:
		return Real(float64(v)), nil
	case float64:
		return Real(v), nil
	case string:
		return Text(v), nil
	case []byte:
		if v == nil {
			return Null(), nil
		}
		return Blob(v), nil
	case time.Time:
		return Text(v.UTC().Format(TimeLayout)), nil
	default:
		return Value{}, misuse("unsupported bind type %T", arg)
	}
}
