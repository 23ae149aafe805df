package db

import (
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
)

// Location selects where a database lives. The zero Location is a
// temporary on-disk database, deleted when its connection closes.
type Location struct {
	path   string
	memory bool
}

// OnDisk locates a database at path, created on first open unless the
// connection is read-only.
func OnDisk(path string) Location { return Location{path: path} }

// InMemory locates a private in-memory database. Every connection
// opened at this location sees its own database.
func InMemory() Location { return Location{memory: true} }

// Temporary locates a temporary on-disk database.
func Temporary() Location { return Location{} }

func (l Location) enginePath() string {
	if l.memory {
		return ":memory:"
	}
	return l.path
}

func (l Location) String() string {
	if l.memory {
		return ":memory:"
	}
	if l.path == "" {
		return "(temporary)"
	}
	return l.path
}

type openConfig struct {
	readOnly    bool
	noMutex     bool
	sharedCache bool
}

// OpenOption adjusts how a Connection is opened. Defaults are
// read-write with create, the engine's full (serialized) mutex, and a
// private page cache.
type OpenOption func(*openConfig)

// ReadOnly opens the database without write access; the file must
// already exist.
func ReadOnly() OpenOption { return func(c *openConfig) { c.readOnly = true } }

// NoMutex opens the native handle in multi-thread mode, dropping the
// engine's own serialization. Only safe behind a ConnectionQueue.
func NoMutex() OpenOption { return func(c *openConfig) { c.noMutex = true } }

// SharedCache opens the connection with a shared page cache.
func SharedCache() OpenOption { return func(c *openConfig) { c.sharedCache = true } }

// Connection owns exactly one native database handle. It is not safe
// for concurrent use; wrap it in a ConnectionQueue to share it between
// goroutines.
type Connection struct {
	conn   *sqlite.Conn
	loc    Location
	closed bool
}

// Open opens a connection at loc. The returned Connection must be
// closed to release the native handle.
func Open(loc Location, opts ...OpenOption) (*Connection, error) {
	var cfg openConfig
	for _, o := range opts {
		o(&cfg)
	}

	var flags sqlite.OpenFlags
	if cfg.readOnly {
		flags = sqlite.OpenReadOnly
	} else {
		flags = sqlite.OpenReadWrite | sqlite.OpenCreate
	}
	if cfg.noMutex {
		flags |= sqlite.OpenNoMutex
	} else {
		flags |= sqlite.OpenFullMutex
	}
	if cfg.sharedCache {
		flags |= sqlite.OpenSharedCache
	} else {
		flags |= sqlite.OpenPrivateCache
	}

	conn, err := sqlite.OpenConn(loc.enginePath(), flags)
	if err != nil {
		return nil, translate(err)
	}
	conn.SetBusyTimeout(5 * time.Second)
	return &Connection{conn: conn, loc: loc}, nil
}

// MustOpen opens a connection and panics on failure. Intended for tests
// and initialization code where failure is unrecoverable.
func MustOpen(loc Location, opts ...OpenOption) *Connection {
	c, err := Open(loc, opts...)
	if err != nil {
		panic("db: failed to open " + loc.String() + ": " + err.Error())
	}
	return c
}

// Location returns where this connection's database lives.
func (c *Connection) Location() Location { return c.loc }

// Close releases the native handle. Closing twice is safe; the second
// call is a no-op.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return translate(c.conn.Close())
}

// Execute compiles and runs sql in one call, discarding any result
// rows. The text may hold several statements separated by semicolons;
// each is run in order, stopping at the first failure. Used for DDL,
// PRAGMA, and migration scripts.
func (c *Connection) Execute(sql string) error {
	if c.closed {
		return misuse("execute on closed connection")
	}
	remaining := sql
	for {
		remaining = strings.TrimSpace(remaining)
		if remaining == "" {
			return nil
		}
		stmt, trailing, err := c.conn.PrepareTransient(remaining)
		if err != nil {
			return translate(err)
		}
		if err := runToExhaustion(stmt); err != nil {
			_ = stmt.Finalize()
			return err
		}
		if err := translate(stmt.Finalize()); err != nil {
			return err
		}
		remaining = remaining[len(remaining)-trailing:]
	}
}

func runToExhaustion(stmt *sqlite.Stmt) error {
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return translate(err)
		}
		if !hasRow {
			return nil
		}
	}
}

// Prepare compiles sql into a Statement. The Statement exclusively owns
// its native handle and must be closed.
func (c *Connection) Prepare(sql string) (*Statement, error) {
	if c.closed {
		return nil, misuse("prepare on closed connection")
	}
	stmt, _, err := c.conn.PrepareTransient(sql)
	if err != nil {
		return nil, translate(err)
	}
	return &Statement{conn: c, stmt: stmt, sql: sql}, nil
}

// LastInsertRowID returns the rowid of the most recent successful
// INSERT on this connection.
func (c *Connection) LastInsertRowID() int64 {
	return c.conn.LastInsertRowID()
}

// Changes returns the number of rows changed by the most recent
// statement on this connection.
func (c *Connection) Changes() int {
	return c.conn.Changes()
}

// TransactionKind selects the lock-acquisition policy of an explicit
// transaction.
type TransactionKind int

const (
	// Deferred acquires locks lazily, on first use.
	Deferred TransactionKind = iota
	// Immediate acquires a reserved write lock up front.
	Immediate
	// Exclusive acquires an exclusive lock up front.
	Exclusive
)

func (k TransactionKind) String() string {
	switch k {
	case Immediate:
		return "IMMEDIATE"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return "DEFERRED"
	}
}

// Transaction runs body inside BEGIN <kind> ... COMMIT. If body or the
// commit fails, the transaction is rolled back and the original error
// is returned; a rollback failure is swallowed so it never masks the
// real cause.
func (c *Connection) Transaction(kind TransactionKind, body func() error) error {
	if err := c.Execute("BEGIN " + kind.String()); err != nil {
		return err
	}
	if err := body(); err != nil {
		_ = c.Execute("ROLLBACK")
		return err
	}
	if err := c.Execute("COMMIT"); err != nil {
		_ = c.Execute("ROLLBACK")
		return err
	}
	return nil
}

// Savepoint runs body inside SAVEPOINT name ... RELEASE. Savepoints
// nest: a body may open further savepoints. On failure the savepoint is
// rolled back and released (both best-effort) and the original error is
// returned. The name is escaped before interpolation, so any string is
// a valid savepoint name.
func (c *Connection) Savepoint(name string, body func() error) error {
	quoted := quoteName(name)
	if err := c.Execute("SAVEPOINT " + quoted); err != nil {
		return err
	}
	if err := body(); err != nil {
		_ = c.Execute("ROLLBACK TO SAVEPOINT " + quoted)
		_ = c.Execute("RELEASE SAVEPOINT " + quoted)
		return err
	}
	if err := c.Execute("RELEASE SAVEPOINT " + quoted); err != nil {
		_ = c.Execute("ROLLBACK TO SAVEPOINT " + quoted)
		_ = c.Execute("RELEASE SAVEPOINT " + quoted)
		return err
	}
	return nil
}

// quoteName doubles embedded single quotes and wraps the whole name in
// single quotes. This is the only defense against names carrying SQL
// metacharacters; savepoint names are interpolated, never bound.
func quoteName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
