package db

import (
	"strings"

	"zombiezen.com/go/sqlite"
)

// NamedArgs carries values for named placeholders. Keys may be written
// with or without the placeholder prefix: "name" and ":name" both match
// the placeholder :name.
type NamedArgs map[string]any

// Column describes one result column of a prepared statement.
type Column struct {
	Name  string
	Index int
}

// Statement owns one prepared-statement handle for its lifetime. It is
// not safe for concurrent use; serialize access through the owning
// connection's queue.
type Statement struct {
	conn   *Connection
	stmt   *sqlite.Stmt
	sql    string
	closed bool

	// gen increments whenever the cursor moves or the statement is
	// reset or closed; Rows snapshot it to detect staleness.
	gen uint64

	cols     []Column
	colIndex map[string]int

	paramNames map[string]int
}

// usable reports whether the statement can still issue native calls.
// The native handle dies with its connection, so a statement outliving
// its connection must be fenced off before any native call.
func (s *Statement) usable(op string) error {
	if s.closed {
		return misuse("%s on closed statement", op)
	}
	if s.conn.closed {
		return misuse("%s on statement whose connection is closed", op)
	}
	return nil
}

// Close finalizes the native handle. The statement has a single owner,
// and a second Close is a no-op, so double release cannot happen.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.gen++
	if s.conn.closed {
		// The native handle died with the connection.
		return nil
	}
	return translate(s.stmt.Finalize())
}

// SQL returns the text the statement was compiled from.
func (s *Statement) SQL() string { return s.sql }

// ParameterCount returns the number of placeholders in the compiled
// text.
func (s *Statement) ParameterCount() int {
	if s.closed {
		return 0
	}
	return s.stmt.BindParamCount()
}

// rebind returns the statement to its initial state and clears all
// prior bindings, making repeated Bind/Run cycles on one statement a
// supported pattern.
func (s *Statement) rebind() error {
	s.gen++
	if err := s.stmt.Reset(); err != nil {
		return translate(err)
	}
	if err := s.stmt.ClearBindings(); err != nil {
		return translate(err)
	}
	return nil
}

// Bind binds positional values. Any prior bindings are cleared first.
// The number of values must match the statement's placeholder count
// exactly; a mismatch is a misuse-coded error reported before any
// native step.
func (s *Statement) Bind(args ...any) error {
	if err := s.usable("bind"); err != nil {
		return err
	}
	if err := s.rebind(); err != nil {
		return err
	}
	if want := s.stmt.BindParamCount(); want != len(args) {
		return misuse("statement expects %d parameters, %d supplied", want, len(args))
	}
	for i, arg := range args {
		v, err := BindValue(arg)
		if err != nil {
			return err
		}
		s.bindAt(i+1, v)
	}
	return nil
}

// BindNamed binds values by placeholder name. Any prior bindings are
// cleared first. Every placeholder must be supplied and every supplied
// name must exist in the compiled text; either violation is a
// misuse-coded error reported before any native step.
func (s *Statement) BindNamed(args NamedArgs) error {
	if err := s.usable("bind"); err != nil {
		return err
	}
	if err := s.rebind(); err != nil {
		return err
	}
	if want := s.stmt.BindParamCount(); want != len(args) {
		return misuse("statement expects %d parameters, %d supplied", want, len(args))
	}
	names := s.parameterNames()
	for name, arg := range args {
		idx, ok := names[strings.TrimLeft(name, ":@$?")]
		if !ok {
			return misuse("no parameter named %q in statement", name)
		}
		v, err := BindValue(arg)
		if err != nil {
			return err
		}
		s.bindAt(idx, v)
	}
	return nil
}

// parameterNames resolves placeholder names to 1-based indexes, once
// per statement. Names are stored without their prefix character.
func (s *Statement) parameterNames() map[string]int {
	if s.paramNames == nil {
		n := s.stmt.BindParamCount()
		s.paramNames = make(map[string]int, n)
		for i := 1; i <= n; i++ {
			name := s.stmt.BindParamName(i)
			if name == "" {
				continue
			}
			s.paramNames[strings.TrimLeft(name, ":@$?")] = i
		}
	}
	return s.paramNames
}

// bindAt writes one storage value into placeholder i (1-based).
func (s *Statement) bindAt(i int, v Value) {
	switch v.class {
	case ClassNull:
		s.stmt.BindNull(i)
	case ClassInteger:
		s.stmt.BindInt64(i, v.n)
	case ClassReal:
		s.stmt.BindFloat(i, v.f)
	case ClassText:
		s.stmt.BindText(i, v.s)
	case ClassBlob:
		s.stmt.BindBytes(i, v.b)
	}
}

// Step advances the cursor one row. It returns true while a row is
// available and false at exhaustion. Stepping invalidates any Row
// obtained from the previous position.
func (s *Statement) Step() (bool, error) {
	if err := s.usable("step"); err != nil {
		return false, err
	}
	s.gen++
	hasRow, err := s.stmt.Step()
	if err != nil {
		return false, translate(err)
	}
	return hasRow, nil
}

// Run steps the statement to exhaustion, discarding rows, then resets
// it. Used for statements with no result set.
func (s *Statement) Run() error {
	for {
		hasRow, err := s.Step()
		if err != nil {
			_ = s.stmt.Reset()
			return err
		}
		if !hasRow {
			break
		}
	}
	s.gen++
	return translate(s.stmt.Reset())
}

// Row returns a read-only view over the current result row. The view is
// valid only until the next Step, Bind, Run, or Close on this
// statement.
func (s *Statement) Row() *Row {
	return &Row{stmt: s, gen: s.gen}
}

// Query steps through every remaining row, handing each to fn. A
// non-nil error from fn stops the iteration and is returned unchanged.
func (s *Statement) Query(fn func(*Row) error) error {
	for {
		hasRow, err := s.Step()
		if err != nil {
			return err
		}
		if !hasRow {
			return nil
		}
		if err := fn(s.Row()); err != nil {
			return err
		}
	}
}

// QueryRow steps at most once. It returns (row, true, nil) if a row is
// available and (nil, false, nil) on an empty result set.
func (s *Statement) QueryRow() (*Row, bool, error) {
	hasRow, err := s.Step()
	if err != nil {
		return nil, false, err
	}
	if !hasRow {
		return nil, false, nil
	}
	return s.Row(), true, nil
}

// QueryValue steps at most once and extracts the raw storage value of
// the first column. An empty result set or NULL-typed miss yields
// (Value, false, nil).
func (s *Statement) QueryValue() (Value, bool, error) {
	row, ok, err := s.QueryRow()
	if err != nil || !ok {
		return Value{}, false, err
	}
	v, ok := row.Value(0)
	return v, ok, nil
}

// QueryInt64 steps at most once and extracts the first column as an
// integer.
func (s *Statement) QueryInt64() (int64, bool, error) {
	v, ok, err := s.QueryValue()
	if err != nil || !ok {
		return 0, false, err
	}
	n, ok := v.AsInt64()
	return n, ok, nil
}

// QueryText steps at most once and extracts the first column as text.
func (s *Statement) QueryText() (string, bool, error) {
	v, ok, err := s.QueryValue()
	if err != nil || !ok {
		return "", false, err
	}
	t, ok := v.AsText()
	return t, ok, nil
}

// QueryFloat64 steps at most once and extracts the first column as a
// real.
func (s *Statement) QueryFloat64() (float64, bool, error) {
	v, ok, err := s.QueryValue()
	if err != nil || !ok {
		return 0, false, err
	}
	f, ok := v.AsFloat64()
	return f, ok, nil
}

// Columns enumerates the statement's result columns. The metadata is
// read once and cached for the statement's lifetime.
func (s *Statement) Columns() []Column {
	s.ensureColumns()
	return s.cols
}

// ColumnIndex resolves a column name to its ordinal through the cached
// name table. An unknown name yields ok == false, never a fault.
func (s *Statement) ColumnIndex(name string) (int, bool) {
	s.ensureColumns()
	i, ok := s.colIndex[name]
	return i, ok
}

func (s *Statement) ensureColumns() {
	if s.colIndex != nil || s.closed || s.conn.closed {
		return
	}
	n := s.stmt.ColumnCount()
	s.cols = make([]Column, n)
	s.colIndex = make(map[string]int, n)
	for i := 0; i < n; i++ {
		name := s.stmt.ColumnName(i)
		s.cols[i] = Column{Name: name, Index: i}
		if _, dup := s.colIndex[name]; !dup {
			s.colIndex[name] = i
		}
	}
}
