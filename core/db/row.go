package db

import (
	"time"

	"zombiezen.com/go/sqlite"
)

// Row is a transient, read-only view over a Statement's current result
// row. A Row is valid only until the next Step, Bind, Run, or Close on
// its Statement; a stale Row yields no values instead of touching the
// engine's moved cursor.
type Row struct {
	stmt *Statement
	gen  uint64
}

func (r *Row) valid() bool {
	return r.stmt != nil && !r.stmt.closed && !r.stmt.conn.closed && r.gen == r.stmt.gen
}

// Value extracts the raw storage value of column i using the engine's
// declared type for the current row. Out-of-range indexes and stale
// rows yield ok == false.
func (r *Row) Value(i int) (Value, bool) {
	if !r.valid() || i < 0 || i >= r.stmt.stmt.ColumnCount() {
		return Value{}, false
	}
	st := r.stmt.stmt
	switch st.ColumnType(i) {
	case sqlite.TypeNull:
		return Null(), true
	case sqlite.TypeInteger:
		return Integer(st.ColumnInt64(i)), true
	case sqlite.TypeFloat:
		return Real(st.ColumnFloat(i)), true
	case sqlite.TypeText:
		return Text(st.ColumnText(i)), true
	case sqlite.TypeBlob:
		buf := make([]byte, st.ColumnLen(i))
		n := st.ColumnBytes(i, buf)
		return Blob(buf[:n]), true
	default:
		return Value{}, false
	}
}

// Named extracts the raw storage value of the column called name,
// resolved through the statement's cached name table. An unknown name
// yields ok == false, never a fault.
func (r *Row) Named(name string) (Value, bool) {
	if !r.valid() {
		return Value{}, false
	}
	i, ok := r.stmt.ColumnIndex(name)
	if !ok {
		return Value{}, false
	}
	return r.Value(i)
}

// Int64 extracts column i as an integer; mismatched storage classes
// yield ok == false.
func (r *Row) Int64(i int) (int64, bool) {
	v, ok := r.Value(i)
	if !ok {
		return 0, false
	}
	return v.AsInt64()
}

// Int extracts column i as an int, clamping on 32-bit platforms.
func (r *Row) Int(i int) (int, bool) {
	v, ok := r.Value(i)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Float64 extracts column i as a real.
func (r *Row) Float64(i int) (float64, bool) {
	v, ok := r.Value(i)
	if !ok {
		return 0, false
	}
	return v.AsFloat64()
}

// Bool extracts column i as a bool (integer storage, non-zero is true).
func (r *Row) Bool(i int) (bool, bool) {
	v, ok := r.Value(i)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// Text extracts column i as text.
func (r *Row) Text(i int) (string, bool) {
	v, ok := r.Value(i)
	if !ok {
		return "", false
	}
	return v.AsText()
}

// Blob extracts column i as a byte sequence. The bytes are copied out
// of the engine and remain valid after the row goes stale.
func (r *Row) Blob(i int) ([]byte, bool) {
	v, ok := r.Value(i)
	if !ok {
		return nil, false
	}
	return v.AsBlob()
}

// Time extracts column i as a UTC time stored in TimeLayout.
func (r *Row) Time(i int) (time.Time, bool) {
	v, ok := r.Value(i)
	if !ok {
		return time.Time{}, false
	}
	return v.AsTime()
}

// ColumnCount returns the number of columns in the row, or 0 for a
// stale row.
func (r *Row) ColumnCount() int {
	if !r.valid() {
		return 0
	}
	return r.stmt.stmt.ColumnCount()
}
