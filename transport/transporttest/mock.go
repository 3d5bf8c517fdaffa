// Package transporttest is an in-process, in-memory Transport used by the
// rest of this module's test suites, modeled on the pack's mock-RESP-server
// test pattern: rather than a live Redis Cluster, tests script per-node,
// per-command canned responses and assert on what the engine did with them.
package transporttest

import (
	"context"
	"sync"

	"rkcluster/parser"
	"rkcluster/transport"
)

// Handler computes the Result for one command sent to one node.
type Handler func(cmd parser.Command) transport.Result

// Mock is a Transport whose Open/SendOne/SendPipeline behavior is entirely
// scripted by the test.
type Mock struct {
	mu       sync.Mutex
	handlers map[string]Handler
	openErr  map[string]error
	opens    map[string]int
	asking   map[string]int
}

// NewMock returns an empty Mock; every node is reachable and returns a nil
// reply for every command until a handler is set for its address.
func NewMock() *Mock {
	return &Mock{
		handlers: map[string]Handler{},
		openErr:  map[string]error{},
		opens:    map[string]int{},
		asking:   map[string]int{},
	}
}

// Handle registers the handler that answers every command sent to addr.
func (m *Mock) Handle(addr string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[addr] = h
}

// FailOpen makes Open(addr) return err instead of succeeding.
func (m *Mock) FailOpen(addr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr[addr] = err
}

// Opens returns how many times Open succeeded for addr.
func (m *Mock) Opens(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[addr]
}

// AskingCount returns how many ASKING commands addr received.
func (m *Mock) AskingCount(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asking[addr]
}

type mockConn struct {
	node transport.Node
}

func (c *mockConn) Node() transport.Node { return c.node }
func (c *mockConn) Close() error         { return nil }

func (m *Mock) Open(_ context.Context, node transport.Node) (transport.Conn, error) {
	addr := node.Addr()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.openErr[addr]; ok {
		return nil, err
	}
	m.opens[addr]++
	return &mockConn{node: node}, nil
}

func (m *Mock) SendOne(_ context.Context, conn transport.Conn, cmd parser.Command) transport.Result {
	mc := conn.(*mockConn)
	addr := mc.node.Addr()

	if len(cmd) > 0 && string(cmd[0]) == "ASKING" {
		m.mu.Lock()
		m.asking[addr]++
		m.mu.Unlock()
		return transport.Result{Reply: "OK"}
	}

	m.mu.Lock()
	h := m.handlers[addr]
	m.mu.Unlock()
	if h == nil {
		return transport.Result{Reply: nil}
	}
	return h(cmd)
}

func (m *Mock) SendPipeline(ctx context.Context, conn transport.Conn, cmds parser.Pipeline) []transport.Result {
	results := make([]transport.Result, len(cmds))
	for i, c := range cmds {
		results[i] = m.SendOne(ctx, conn, c)
	}
	return results
}
