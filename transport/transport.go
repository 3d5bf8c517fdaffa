// Package transport defines the narrow interface the core consumes to send
// bytes to one Redis node and get a reply back. The wire protocol itself,
// reconnection, keepalive, and authentication all live on the other side of
// this interface — the core only ever calls Open/SendOne/SendPipeline.
package transport

import (
	"context"
	"fmt"

	"rkcluster/parser"
)

// Node identifies one Redis Cluster member by address.
type Node struct {
	Host string
	Port int
}

// Addr renders the node as "host:port", matching the address format MOVED
// and ASK replies use.
func (n Node) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// Conn is an opaque, live connection to one Node. The core never inspects
// or mutates it beyond passing it back into SendOne/SendPipeline/Close; the
// transport owns its lifecycle, reconnects, and keepalive.
type Conn interface {
	Node() Node
	Close() error
}

// Result is the outcome of one command: either a reply, or an error whose
// Error() string is the server's raw error text (e.g.
// "MOVED 1234 10.0.0.2:7000"), letting the engine's classifier pattern
// match on it directly.
type Result struct {
	Reply interface{}
	Err   error
}

// Ok reports whether the result was a success.
func (r Result) Ok() bool { return r.Err == nil }

// Transport is the collaborator the core's Cluster State and Query Engine
// consume to talk to real Redis nodes.
type Transport interface {
	// Open establishes a connection to node. Returns an error if the node
	// can't be reached.
	Open(ctx context.Context, node Node) (Conn, error)
	// SendOne executes a single command over conn.
	SendOne(ctx context.Context, conn Conn, cmd parser.Command) Result
	// SendPipeline executes an ordered sequence of commands over conn,
	// returning one Result per command in the same order.
	SendPipeline(ctx context.Context, conn Conn, cmds parser.Pipeline) []Result
}
