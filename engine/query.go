// Package engine is the stateless query dispatcher: given a command or
// pipeline, a Cluster State, and a Transport, it drives each (sub-)query
// through resolve-slot -> get-connection -> execute -> classify ->
// (maybe refresh and) retry, bounded by a request TTL, and reassembles
// pipeline results back into the caller's original order.
package engine

import (
	"time"

	"rkcluster/corelog"
	"rkcluster/metrics"
	"rkcluster/parser"
	"rkcluster/transport"

	"golang.org/x/time/rate"
)

// Config carries the tuning constants and collaborators every call uses.
type Config struct {
	// TTL is the maximum number of retries a single top-level call may
	// spend before the last observed error is returned. Recommended 16.
	TTL int
	// RetryDelay paces attempts beyond the first, throttling redirection
	// storms: retries of one call start at least RetryDelay apart, the
	// first no sooner than RetryDelay after the call began. A retry whose
	// turn has already passed starts without waiting. Recommended 100ms.
	RetryDelay time.Duration
	Logger     corelog.Logger
	Metrics    *metrics.Collector

	// limiter paces this call's attempts beyond the first at RetryDelay,
	// built lazily from RetryDelay by withDefaults.
	limiter *rate.Limiter
}

// DefaultConfig returns the §6-recommended tuning constants with a discard
// logger and no metrics collector.
func DefaultConfig() Config {
	return Config{
		TTL:        16,
		RetryDelay: 100 * time.Millisecond,
		Logger:     corelog.Discard,
	}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 16
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = corelog.Discard
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Every(c.RetryDelay), 1)
		// A fresh Limiter starts with its burst token already available,
		// which would let the very first retry skip the delay entirely.
		// Spend that token up front so the first retry, like every later
		// one, waits for a token that accrues RetryDelay after the last.
		c.limiter.Allow()
	}
	return c
}

// Query is the request-scoped, mutable record threaded through the engine.
// Orig holds the caller's full original pipeline (length 1 for a single
// command); Indices names which positions of Orig this particular Query
// batch is responsible for, in caller-visible order.
type Query struct {
	ClusterName string
	Orig        parser.Pipeline
	Indices     []int

	// Asking marks that the dispatched command list was synthetically
	// prefixed with ASKING (making it a two-element pipeline even though
	// Indices has exactly one entry); the ASKING reply is never surfaced
	// to the caller.
	Asking bool

	Slot            int
	Conn            transport.Conn
	VersionObserved uint64
	Response        []transport.Result
	Retries         int
}

var askingCmd = parser.Command{[]byte("ASKING")}

// dispatch builds the pipeline actually sent to the transport for this
// round: the caller's original commands at Indices, optionally prefixed
// with a synthetic ASKING.
func (q *Query) dispatch() parser.Pipeline {
	n := len(q.Indices)
	if q.Asking {
		n++
	}
	cmds := make(parser.Pipeline, 0, n)
	if q.Asking {
		cmds = append(cmds, askingCmd)
	}
	for _, i := range q.Indices {
		cmds = append(cmds, q.Orig[i])
	}
	return cmds
}

// responseOffset is how many leading entries of Response are synthetic
// (the ASKING ack) and must be skipped when mapping results back to
// Indices.
func (q *Query) responseOffset() int {
	if q.Asking {
		return 1
	}
	return 0
}

// subResult is one terminal (index, result) pair, in the caller's
// original pipeline position.
type subResult struct {
	Index  int
	Result transport.Result
}
