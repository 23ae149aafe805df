package db

import (
	"log"
	"sync"
	"time"
)

// DefaultDrainDelay is how long a pool waits after the last checkin
// before reclaiming idle connections.
const DefaultDrainDelay = 1 * time.Second

// PoolOptions configures a ConnectionPool.
type PoolOptions struct {
	// DrainDelay overrides DefaultDrainDelay when positive.
	DrainDelay time.Duration

	// Prepare runs exactly once on each newly opened connection,
	// before it serves any work. Use it to register collations or
	// set per-connection pragmas.
	Prepare func(*Connection) error

	// Open is appended to the pool's own options when opening new
	// connections. The pool always opens read-only.
	Open []OpenOption

	// Logger, when non-nil, records grow and drain decisions.
	Logger *log.Logger
}

// ConnectionPool manages a set of read-only connections, each behind
// its own ConnectionQueue, growing on demand and shrinking after an
// idle delay. Opening a connection is comparatively expensive and the
// engine enforces no maximum, so the pool grows freely under load and
// collapses back to a single warm connection afterwards.
//
// An InMemory location is almost never what a pool wants: every new
// pool connection would open its own private, empty database.
type ConnectionPool struct {
	loc  Location
	opts PoolOptions

	mu         sync.Mutex
	available  map[string]*ConnectionQueue
	busy       map[string]*ConnectionQueue
	timerArmed bool
	timer      *time.Timer
	closed     bool
}

// NewConnectionPool creates an empty pool over loc. Connections are
// opened lazily, on first demand.
func NewConnectionPool(loc Location, opts PoolOptions) *ConnectionPool {
	if opts.DrainDelay <= 0 {
		opts.DrainDelay = DefaultDrainDelay
	}
	return &ConnectionPool{
		loc:       loc,
		opts:      opts,
		available: make(map[string]*ConnectionQueue),
		busy:      make(map[string]*ConnectionQueue),
	}
}

// Execute checks out a connection queue, runs body through its
// serialized Execute, and checks the queue back in. Checkout blocks
// only on the pool's own mutex; the SQL work itself runs outside it, so
// independent callers execute truly concurrently on separate
// connections. The checkin is deferred so a panicking body cannot
// strand its queue in the busy set.
func (p *ConnectionPool) Execute(body func(*Connection) error) error {
	q, err := p.checkout()
	if err != nil {
		return err
	}
	defer p.checkin(q)
	return q.Execute(body)
}

// checkout takes an available queue or opens a new read-only
// connection, and marks the chosen queue busy. A queue is never a
// member of both sets.
func (p *ConnectionPool) checkout() (*ConnectionQueue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, misuse("execute on closed connection pool")
	}

	for id, q := range p.available {
		delete(p.available, id)
		p.busy[id] = q
		return q, nil
	}

	opts := append([]OpenOption{ReadOnly()}, p.opts.Open...)
	conn, err := Open(p.loc, opts...)
	if err != nil {
		return nil, err
	}
	if p.opts.Prepare != nil {
		if err := p.opts.Prepare(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	q := NewConnectionQueue(conn)
	p.busy[q.id] = q
	p.logf("pool: opened connection %s (busy=%d available=%d)", q.id, len(p.busy), len(p.available))
	return q, nil
}

// checkin moves q from busy back to available and arms the drain timer
// if none is pending. After Close, returning queues are shut instead of
// pooled.
func (p *ConnectionPool) checkin(q *ConnectionQueue) {
	p.mu.Lock()
	if p.closed {
		delete(p.busy, q.id)
		p.mu.Unlock()
		_ = q.Close()
		return
	}
	delete(p.busy, q.id)
	p.available[q.id] = q
	p.armDrainLocked()
	p.mu.Unlock()
}

// armDrainLocked schedules one drain decision. The timer is never armed
// twice concurrently; at most one drain decision is in flight.
func (p *ConnectionPool) armDrainLocked() {
	if p.timerArmed || p.closed {
		return
	}
	p.timerArmed = true
	p.timer = time.AfterFunc(p.opts.DrainDelay, p.drain)
}

// drain is the single reclamation decision. Ongoing load (any busy
// connection) only re-arms the timer; otherwise the available set is
// shrunk to at most one warm connection.
func (p *ConnectionPool) drain() {
	p.mu.Lock()
	p.timerArmed = false
	if p.closed {
		p.mu.Unlock()
		return
	}
	if len(p.busy) > 0 {
		p.armDrainLocked()
		p.mu.Unlock()
		return
	}

	var victims []*ConnectionQueue
	kept := false
	for id, q := range p.available {
		if !kept {
			kept = true
			continue
		}
		delete(p.available, id)
		victims = append(victims, q)
	}
	p.mu.Unlock()

	for _, q := range victims {
		_ = q.Close()
	}
	if len(victims) > 0 {
		p.logf("pool: drained %d idle connection(s), kept %d", len(victims), 1)
	}
}

// Idle returns the number of available connections.
func (p *ConnectionPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// InUse returns the number of busy connections.
func (p *ConnectionPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy)
}

// Close stops the drain timer and closes every pooled connection. Busy
// connections are closed as they are checked back in. Execute on a
// closed pool fails with a misuse error.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	victims := make([]*ConnectionQueue, 0, len(p.available))
	for id, q := range p.available {
		delete(p.available, id)
		victims = append(victims, q)
	}
	p.mu.Unlock()

	var first error
	for _, q := range victims {
		if err := q.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *ConnectionPool) logf(format string, args ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Printf(format, args...)
	}
}
