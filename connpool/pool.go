// Package connpool is a small per-node connection pool, generalized from a
// single-node Redis client pool into a generic pool over any connection
// type T. The reference transport keeps one of these per (host, port) so
// that repeated commands against the same node reuse live connections
// instead of dialing per call.
package connpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// waitForReuse is how long a connection sits unused in the secondary pool
// before it's eligible to be closed in favor of a fresher one.
const waitForReuse = time.Minute

// defaultMaxActive bounds outstanding connections when the caller didn't
// specify one.
const defaultMaxActive = 100

var (
	// ErrIllegalArgument is returned by New when size/maxActive are
	// inconsistent.
	ErrIllegalArgument = errors.New("connpool: bad arguments")
	// ErrPoolExhausted is returned by Get when the pool is at maxActive
	// and no connection is free.
	ErrPoolExhausted = errors.New("connpool: exhausted")
)

// DialFunc creates one new connection of type T.
type DialFunc[T any] func() (T, error)

// CloseFunc closes one connection of type T.
type CloseFunc[T any] func(T) error

// Pool is a generic connection pool: a small set of warm idle connections,
// with the ability to grow up to maxActive on demand and shrink back down
// as connections are returned and found stale.
type Pool[T any] struct {
	Addr string

	idle      chan T
	secondary chan T
	secActive atomic.Value // time.Time

	dial  DialFunc[T]
	close CloseFunc[T]

	active    int32
	maxActive int32

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Pool of up to size idle connections (grown lazily, not
// eagerly — unlike the pool this was adapted from, dialing on every New
// call would mean opening every cluster node's connection on startup, which
// isn't what Cluster State wants: nodes are connected to lazily, on first
// routing need). maxActive bounds how many connections to Addr may exist at
// once; 0 means defaultMaxActive.
func New[T any](addr string, size, maxActive int, dial DialFunc[T], closeFn CloseFunc[T]) (*Pool[T], error) {
	if maxActive <= 0 {
		maxActive = defaultMaxActive
	}
	if maxActive < size {
		return nil, ErrIllegalArgument
	}
	p := &Pool[T]{
		Addr:      addr,
		idle:      make(chan T, size),
		secondary: make(chan T, maxActive-size),
		dial:      dial,
		close:     closeFn,
		maxActive: int32(maxActive),
		stopCh:    make(chan struct{}),
	}
	p.secActive.Store(time.Now())
	return p, nil
}

// Get retrieves a connection, preferring an idle one, then one from the
// secondary pool, then dialing a new one if under maxActive.
func (p *Pool[T]) Get() (T, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}
	select {
	case c := <-p.secondary:
		p.secActive.Store(time.Now())
		return c, nil
	default:
	}
	for {
		active := atomic.LoadInt32(&p.active)
		if active >= p.maxActive {
			var zero T
			return zero, ErrPoolExhausted
		}
		if atomic.CompareAndSwapInt32(&p.active, active, active+1) {
			c, err := p.dial()
			if err != nil {
				atomic.AddInt32(&p.active, -1)
				var zero T
				return zero, err
			}
			return c, nil
		}
	}
}

// Put returns a connection to the pool, or closes it if the pool is full
// or has been emptied. Putting a connection into the idle set also closes
// one secondary connection once the secondary pool has gone unused for
// waitForReuse.
func (p *Pool[T]) Put(c T) {
	select {
	case <-p.stopCh:
		atomic.AddInt32(&p.active, -1)
		p.closeQuiet(c)
		return
	default:
	}
	select {
	case p.idle <- c:
		if p.secActive.Load().(time.Time).Add(waitForReuse).Before(time.Now()) {
			select {
			case stale := <-p.secondary:
				atomic.AddInt32(&p.active, -1)
				p.closeQuiet(stale)
			default:
				p.secActive.Store(time.Now())
			}
		}
	default:
		select {
		case p.secondary <- c:
		default:
			atomic.AddInt32(&p.active, -1)
			p.closeQuiet(c)
		}
	}
}

// Discard drops a connection without returning it to the pool, for callers
// that know the connection is no longer usable (e.g. after an I/O error).
func (p *Pool[T]) Discard(c T) {
	atomic.AddInt32(&p.active, -1)
	p.closeQuiet(c)
}

func (p *Pool[T]) closeQuiet(c T) {
	if p.close != nil {
		_ = p.close(c)
	}
}

// Avail returns the number of idle connections immediately available.
func (p *Pool[T]) Avail() int {
	return len(p.idle)
}

// Empty closes every connection currently idle in the pool. Connections
// checked out at the time of the call are unaffected and will be closed
// when Discard'd or Put back after Empty.
func (p *Pool[T]) Empty() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	for {
		select {
		case c := <-p.idle:
			atomic.AddInt32(&p.active, -1)
			p.closeQuiet(c)
		case c := <-p.secondary:
			atomic.AddInt32(&p.active, -1)
			p.closeQuiet(c)
		default:
			return
		}
	}
}
