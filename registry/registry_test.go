package registry

import (
	"context"
	"sync"
	"testing"

	"rkcluster/discovery"
	"rkcluster/parser"
	"rkcluster/transport"
	"rkcluster/transport/transporttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	node transport.Node
}

func (d fakeDiscoverer) Slots(ctx context.Context, t transport.Transport, conn transport.Conn) ([]discovery.SlotRange, error) {
	return []discovery.SlotRange{{Start: 0, End: parser.NumSlots - 1, Primary: d.node}}, nil
}

func TestStartIsIdempotentSequential(t *testing.T) {
	mock := transporttest.NewMock()
	node := transport.Node{Host: "10.0.0.1", Port: 7000}
	r := New()

	s1, err := r.Start(context.Background(), "c", []transport.Node{node}, mock, fakeDiscoverer{node}, nil)
	require.NoError(t, err)

	s2, err := r.Start(context.Background(), "c", []transport.Node{node}, mock, fakeDiscoverer{node}, nil)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
}

func TestStartIsIdempotentConcurrent(t *testing.T) {
	mock := transporttest.NewMock()
	node := transport.Node{Host: "10.0.0.1", Port: 7000}
	r := New()

	var wg sync.WaitGroup
	const n = 20
	states := make([]interface{ GetConnectionBySlot(int) (transport.Conn, uint64, bool) }, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Start(context.Background(), "c", []transport.Node{node}, mock, fakeDiscoverer{node}, nil)
			require.NoError(t, err)
			states[i] = s
		}(i)
	}
	wg.Wait()

	first := states[0]
	for _, s := range states {
		assert.Same(t, first, s)
	}
	assert.Equal(t, 1, mock.Opens(node.Addr()), "only one bootstrap should have opened the seed")
}

func TestLookupUnknownCluster(t *testing.T) {
	r := New()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestStartFailsThenRetrySucceeds(t *testing.T) {
	mock := transporttest.NewMock()
	node := transport.Node{Host: "10.0.0.1", Port: 7000}
	mock.FailOpen(node.Addr(), errBoom)
	r := New()

	_, err := r.Start(context.Background(), "c", []transport.Node{node}, mock, fakeDiscoverer{node}, nil)
	require.Error(t, err)

	mock2 := transporttest.NewMock()
	s, err := r.Start(context.Background(), "c", []transport.Node{node}, mock2, fakeDiscoverer{node}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
}

var errBoom = boomErr{}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }
