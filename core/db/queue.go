package db

import (
	"sync"

	"github.com/google/uuid"
)

// ConnectionQueue owns one Connection exclusively and guarantees that
// only one operation touches its native handle at any instant,
// regardless of how many goroutines call in. Calls are totally ordered:
// a call issued after another returns observes all of its effects.
type ConnectionQueue struct {
	id string

	mu     sync.Mutex
	conn   *Connection
	closed bool
}

// NewConnectionQueue wraps conn in a queue. The queue takes ownership;
// callers must not use conn directly afterwards.
func NewConnectionQueue(conn *Connection) *ConnectionQueue {
	return &ConnectionQueue{id: uuid.New().String(), conn: conn}
}

// OpenQueue opens a connection at loc and wraps it in a queue.
func OpenQueue(loc Location, opts ...OpenOption) (*ConnectionQueue, error) {
	conn, err := Open(loc, opts...)
	if err != nil {
		return nil, err
	}
	return NewConnectionQueue(conn), nil
}

// ID returns the queue's generated unique identity, used for set
// membership in a ConnectionPool.
func (q *ConnectionQueue) ID() string { return q.id }

// Execute runs body in the queue's serialized slot. The calling
// goroutine blocks until body returns; there is no cancellation of an
// in-flight native call.
func (q *ConnectionQueue) Execute(body func(*Connection) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return misuse("execute on closed connection queue")
	}
	return body(q.conn)
}

// ExecuteInTransaction runs body inside BEGIN <kind> ... COMMIT within
// one serialized slot, so no other queued operation can interleave
// inside the transaction.
func (q *ConnectionQueue) ExecuteInTransaction(kind TransactionKind, body func(*Connection) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return misuse("execute on closed connection queue")
	}
	return q.conn.Transaction(kind, func() error {
		return body(q.conn)
	})
}

// ExecuteInSavepoint runs body inside SAVEPOINT name ... RELEASE within
// one serialized slot.
func (q *ConnectionQueue) ExecuteInSavepoint(name string, body func(*Connection) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return misuse("execute on closed connection queue")
	}
	return q.conn.Savepoint(name, func() error {
		return body(q.conn)
	})
}

// Close waits for any in-flight operation, then closes the owned
// connection. Further calls on the queue fail with a misuse error.
func (q *ConnectionQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.conn.Close()
}
