package db

import (
	"bytes"
	"math"
	"strconv"
	"time"
)

// StorageClass identifies which of the engine's five value categories a
// Value holds.
type StorageClass int

const (
	ClassNull StorageClass = iota
	ClassInteger
	ClassReal
	ClassText
	ClassBlob
)

func (c StorageClass) String() string {
	switch c {
	case ClassNull:
		return "NULL"
	case ClassInteger:
		return "INTEGER"
	case ClassReal:
		return "REAL"
	case ClassText:
		return "TEXT"
	case ClassBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// TimeLayout is the fixed, locale-independent textual form for temporal
// values. Storing times this way keeps lexicographic comparison and the
// engine's own date functions valid.
const TimeLayout = "2006-01-02T15:04:05.000"

// Value is the closed sum of the engine's storage classes. Exactly one
// variant is active; the zero Value is NULL.
type Value struct {
	class StorageClass
	n     int64
	f     float64
	s     string
	b     []byte
}

// Null returns the NULL value.
func Null() Value { return Value{class: ClassNull} }

// Integer returns a Value holding a 64-bit signed integer.
func Integer(v int64) Value { return Value{class: ClassInteger, n: v} }

// Real returns a Value holding a 64-bit float.
func Real(v float64) Value { return Value{class: ClassReal, f: v} }

// Text returns a Value holding a UTF-8 string.
func Text(v string) Value { return Value{class: ClassText, s: v} }

// Blob returns a Value holding a byte sequence. The slice is not
// copied; callers must not mutate it afterwards.
func Blob(v []byte) Value { return Value{class: ClassBlob, b: v} }

// Class reports which variant is active.
func (v Value) Class() StorageClass { return v.class }

// IsNull reports whether v is the NULL value.
func (v Value) IsNull() bool { return v.class == ClassNull }

// Equal reports structural equality: same storage class, same payload.
func (v Value) Equal(o Value) bool {
	if v.class != o.class {
		return false
	}
	switch v.class {
	case ClassNull:
		return true
	case ClassInteger:
		return v.n == o.n
	case ClassReal:
		return v.f == o.f
	case ClassText:
		return v.s == o.s
	case ClassBlob:
		return bytes.Equal(v.b, o.b)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.class {
	case ClassNull:
		return "NULL"
	case ClassInteger:
		return "INTEGER(" + strconv.FormatInt(v.n, 10) + ")"
	case ClassReal:
		return "REAL(" + strconv.FormatFloat(v.f, 'g', -1, 64) + ")"
	case ClassText:
		return "TEXT(" + v.s + ")"
	case ClassBlob:
		return "BLOB[" + strconv.Itoa(len(v.b)) + "]"
	default:
		return "UNKNOWN"
	}
}

// clampInt64 narrows v to [lo, hi], saturating at the bounds. Narrowing
// conversions clamp instead of wrapping; this is deliberate policy.
func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AsInt64 extracts a 64-bit signed integer. Only the integer storage
// class matches; anything else yields no value.
func (v Value) AsInt64() (int64, bool) {
	if v.class != ClassInteger {
		return 0, false
	}
	return v.n, true
}

// AsInt extracts an int, clamping on 32-bit platforms.
func (v Value) AsInt() (int, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return int(clampInt64(n, math.MinInt, math.MaxInt)), true
}

// AsInt8 extracts an int8, clamping out-of-range values to the bounds.
func (v Value) AsInt8() (int8, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return int8(clampInt64(n, math.MinInt8, math.MaxInt8)), true
}

// AsInt16 extracts an int16, clamping out-of-range values to the bounds.
func (v Value) AsInt16() (int16, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return int16(clampInt64(n, math.MinInt16, math.MaxInt16)), true
}

// AsInt32 extracts an int32, clamping out-of-range values to the bounds.
func (v Value) AsInt32() (int32, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return int32(clampInt64(n, math.MinInt32, math.MaxInt32)), true
}

// AsUint8 extracts a uint8, clamping to [0, 255].
func (v Value) AsUint8() (uint8, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return uint8(clampInt64(n, 0, math.MaxUint8)), true
}

// AsUint16 extracts a uint16, clamping to [0, 65535].
func (v Value) AsUint16() (uint16, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return uint16(clampInt64(n, 0, math.MaxUint16)), true
}

// AsUint32 extracts a uint32, clamping to [0, 4294967295].
func (v Value) AsUint32() (uint32, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return uint32(clampInt64(n, 0, math.MaxUint32)), true
}

// AsUint64 extracts a uint64 by reinterpreting the stored bit pattern,
// so values bound from a uint64 round-trip exactly even when the
// intermediate integer is negative.
func (v Value) AsUint64() (uint64, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, false
	}
	return uint64(n), true
}

// AsUint extracts a uint via the same bit-pattern rule as AsUint64.
func (v Value) AsUint() (uint, bool) {
	n, ok := v.AsUint64()
	if !ok {
		return 0, false
	}
	return uint(n), true
}

// AsBool extracts a bool from the integer storage class; any non-zero
// integer is true.
func (v Value) AsBool() (bool, bool) {
	n, ok := v.AsInt64()
	if !ok {
		return false, false
	}
	return n != 0, true
}

// AsFloat64 extracts a 64-bit float. Only the real storage class
// matches.
func (v Value) AsFloat64() (float64, bool) {
	if v.class != ClassReal {
		return 0, false
	}
	return v.f, true
}

// AsFloat32 extracts a float32, clamping finite out-of-range values to
// the float32 bounds.
func (v Value) AsFloat32() (float32, bool) {
	f, ok := v.AsFloat64()
	if !ok {
		return 0, false
	}
	switch {
	case f > math.MaxFloat32:
		return math.MaxFloat32, true
	case f < -math.MaxFloat32:
		return -math.MaxFloat32, true
	default:
		return float32(f), true
	}
}

// AsText extracts a string. Only the text storage class matches.
func (v Value) AsText() (string, bool) {
	if v.class != ClassText {
		return "", false
	}
	return v.s, true
}

// AsBlob extracts a byte sequence. Only the blob storage class matches.
func (v Value) AsBlob() ([]byte, bool) {
	if v.class != ClassBlob {
		return nil, false
	}
	return v.b, true
}

// AsTime extracts a UTC time from a text value in TimeLayout. Text that
// does not parse yields no value.
func (v Value) AsTime() (time.Time, bool) {
	s, ok := v.AsText()
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
