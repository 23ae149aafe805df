package db

import (
	"errors"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
)

func openTestConn(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(InMemory())
	if err != nil {
		t.Fatalf("failed to open in-memory connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustExecute(t *testing.T, conn *Connection, sql string) {
	t.Helper()
	if err := conn.Execute(sql); err != nil {
		t.Fatalf("execute %q failed: %v", sql, err)
	}
}

func countRows(t *testing.T, conn *Connection, table string) int64 {
	t.Helper()
	stmt, err := conn.Prepare("SELECT count(*) FROM " + table)
	if err != nil {
		t.Fatalf("prepare count failed: %v", err)
	}
	defer stmt.Close()
	n, ok, err := stmt.QueryInt64()
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if !ok {
		t.Fatal("count query returned no value")
	}
	return n
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := Open(OnDisk(path))
	if err != nil {
		t.Fatalf("failed to open on-disk database: %v", err)
	}
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER)")
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// A read-only connection must see the schema but reject writes.
	ro, err := Open(OnDisk(path), ReadOnly())
	if err != nil {
		t.Fatalf("failed to reopen read-only: %v", err)
	}
	defer ro.Close()
	if err := ro.Execute("INSERT INTO t VALUES(1)"); err == nil {
		t.Error("insert on a read-only connection must fail")
	}
}

func TestOpenTemporary(t *testing.T) {
	conn, err := Open(Temporary())
	if err != nil {
		t.Fatalf("failed to open temporary database: %v", err)
	}
	defer conn.Close()
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER)")
	mustExecute(t, conn, "INSERT INTO t VALUES(1)")
	if n := countRows(t, conn, "t"); n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestExecuteRunsAllStatements(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, `
		CREATE TABLE a(x INTEGER);
		CREATE TABLE b(y TEXT);
		INSERT INTO a VALUES(1);
		INSERT INTO b VALUES('semi;colon ; inside a literal');
	`)
	if n := countRows(t, conn, "a"); n != 1 {
		t.Errorf("expected 1 row in a, got %d", n)
	}
	if n := countRows(t, conn, "b"); n != 1 {
		t.Errorf("statement after the first semicolon never ran: %d rows in b", n)
	}

	stmt, err := conn.Prepare("SELECT y FROM b")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()
	got, ok, err := stmt.QueryText()
	if err != nil || !ok {
		t.Fatalf("query failed: ok=%v err=%v", ok, err)
	}
	if want := "semi;colon ; inside a literal"; got != want {
		t.Errorf("literal mangled across statements: got %q, want %q", got, want)
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	conn := openTestConn(t)
	err := conn.Execute("CREATE TABLE a(x INTEGER); NOT VALID SQL; CREATE TABLE c(z INTEGER)")
	if err == nil {
		t.Fatal("broken middle statement must fail the call")
	}
	// Statements before the failure have run; those after have not.
	if n := countRows(t, conn, "a"); n != 0 {
		t.Errorf("table a missing or populated unexpectedly: %d rows", n)
	}
	if err := conn.Execute("SELECT count(*) FROM c"); err == nil {
		t.Error("statement after the failure must not have run")
	}
}

func TestDoubleCloseIsSafe(t *testing.T) {
	conn, err := Open(InMemory())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}
	if err := conn.Execute("SELECT 1"); ErrCode(err) != sqlite.ResultMisuse {
		t.Errorf("execute after close must be a misuse error, got %v", err)
	}
}

func TestEngineErrorCarriesCodeAndMessage(t *testing.T) {
	conn := openTestConn(t)
	err := conn.Execute("NOT VALID SQL")
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	var dbErr *Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if dbErr.Code == sqlite.ResultOK {
		t.Error("engine error must carry a non-success code")
	}
	if dbErr.Message == "" {
		t.Error("engine error must carry the engine's diagnostic message")
	}
}

func TestTransactionCommit(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER)")

	err := conn.Transaction(Immediate, func() error {
		if err := conn.Execute("INSERT INTO t VALUES(1)"); err != nil {
			return err
		}
		return conn.Execute("INSERT INTO t VALUES(2)")
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if n := countRows(t, conn, "t"); n != 2 {
		t.Errorf("expected 2 rows after commit, got %d", n)
	}
}

func TestTransactionRollbackLeavesStateUnchanged(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER NOT NULL)")
	mustExecute(t, conn, "INSERT INTO t VALUES(1)")
	before := countRows(t, conn, "t")

	boom := errors.New("boom")
	err := conn.Transaction(Deferred, func() error {
		// One successful write, then a failing one.
		if err := conn.Execute("INSERT INTO t VALUES(2)"); err != nil {
			return err
		}
		if err := conn.Execute("INSERT INTO t VALUES(NULL)"); err == nil {
			return errors.New("NOT NULL violation did not fail")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("original body error must propagate unchanged, got %v", err)
	}
	if after := countRows(t, conn, "t"); after != before {
		t.Errorf("visible state changed across rolled-back transaction: %d -> %d", before, after)
	}
}

func TestTransactionKinds(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER)")
	for _, kind := range []TransactionKind{Deferred, Immediate, Exclusive} {
		if err := conn.Transaction(kind, func() error {
			return conn.Execute("INSERT INTO t VALUES(1)")
		}); err != nil {
			t.Errorf("%v transaction failed: %v", kind, err)
		}
	}
	if n := countRows(t, conn, "t"); n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
}

func TestSavepointNestingAndEscaping(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER)")

	boom := errors.New("inner failure")
	// The outer name carries an embedded single quote; escaping must
	// keep it a valid savepoint name.
	err := conn.Savepoint("outer 'quoted' name", func() error {
		if err := conn.Execute("INSERT INTO t VALUES(1)"); err != nil {
			return err
		}
		// The inner savepoint rolls back alone; the outer survives.
		inner := conn.Savepoint("it''s nested", func() error {
			if err := conn.Execute("INSERT INTO t VALUES(2)"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(inner, boom) {
			return errors.New("inner savepoint did not propagate its failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer savepoint failed: %v", err)
	}
	if n := countRows(t, conn, "t"); n != 1 {
		t.Errorf("expected only the outer insert to survive, got %d rows", n)
	}
}

func TestSavepointRollbackPropagatesOriginalError(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER)")

	boom := errors.New("boom")
	err := conn.Savepoint("sp", func() error {
		if err := conn.Execute("INSERT INTO t VALUES(1)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if n := countRows(t, conn, "t"); n != 0 {
		t.Errorf("savepoint rollback left %d rows", n)
	}
}

func TestLastInsertRowIDAndChanges(t *testing.T) {
	conn := openTestConn(t)
	mustExecute(t, conn, "CREATE TABLE t(id INTEGER PRIMARY KEY, v TEXT)")
	mustExecute(t, conn, "INSERT INTO t(v) VALUES('a')")
	if id := conn.LastInsertRowID(); id != 1 {
		t.Errorf("expected rowid 1, got %d", id)
	}
	mustExecute(t, conn, "INSERT INTO t(v) VALUES('b')")
	mustExecute(t, conn, "UPDATE t SET v = 'c'")
	if n := conn.Changes(); n != 2 {
		t.Errorf("expected 2 changed rows, got %d", n)
	}
}

func TestQuoteName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"it's", "'it''s'"},
		{"'; DROP TABLE t; --", "'''; DROP TABLE t; --'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := quoteName(tt.in); got != tt.want {
			t.Errorf("quoteName(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
