package clusterstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"rkcluster/discovery"
	"rkcluster/parser"
	"rkcluster/transport"
	"rkcluster/transport/transporttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiscoverer reports whatever ranges (or error) the test set on it and
// counts its calls, so tests don't need to wire a real CLUSTER SLOTS reply
// through the mock transport.
type fakeDiscoverer struct {
	mu     sync.Mutex
	ranges []discovery.SlotRange
	err    error
	calls  int
}

func (d *fakeDiscoverer) Slots(ctx context.Context, t transport.Transport, conn transport.Conn) ([]discovery.SlotRange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.ranges, nil
}

func (d *fakeDiscoverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func nodeA() transport.Node { return transport.Node{Host: "10.0.0.1", Port: 7000} }
func nodeB() transport.Node { return transport.Node{Host: "10.0.0.2", Port: 7001} }

func TestNewBootstrapsFullSlotMap(t *testing.T) {
	mock := transporttest.NewMock()
	disc := &fakeDiscoverer{ranges: []discovery.SlotRange{
		{Start: 0, End: parser.NumSlots - 1, Primary: nodeA()},
	}}

	st, err := New(context.Background(), "c", []transport.Node{nodeA()}, mock, disc, nil)
	require.NoError(t, err)

	conn, version, ok := st.GetConnectionBySlot(1234)
	require.True(t, ok)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, nodeA(), conn.Node())
}

func TestNewFailsWhenNoSeedReachable(t *testing.T) {
	mock := transporttest.NewMock()
	mock.FailOpen(nodeA().Addr(), assertErr)
	disc := &fakeDiscoverer{}

	_, err := New(context.Background(), "c", []transport.Node{nodeA()}, mock, disc, nil)
	assert.Error(t, err)
}

var assertErr = &testErr{"unreachable"}

type testErr struct{ s string }

func (e *testErr) Error() string { return e.s }

func TestRefreshStaleVersionIsNoop(t *testing.T) {
	mock := transporttest.NewMock()
	disc := &fakeDiscoverer{ranges: []discovery.SlotRange{
		{Start: 0, End: parser.NumSlots - 1, Primary: nodeA()},
	}}
	st, err := New(context.Background(), "c", []transport.Node{nodeA()}, mock, disc, &Options{RefreshThrottle: time.Microsecond})
	require.NoError(t, err)

	callsBefore := disc.callCount()
	err = st.Refresh(context.Background(), 0) // version is already 1
	require.NoError(t, err)
	assert.Equal(t, callsBefore, disc.callCount(), "stale observedVersion must not trigger a round trip")
}

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	mock := transporttest.NewMock()
	gate := make(chan struct{})
	close(gate) // New refreshes synchronously: let the bootstrap through
	disc := &blockingDiscoverer{ranges: []discovery.SlotRange{
		{Start: 0, End: parser.NumSlots - 1, Primary: nodeA()},
	}, gate: gate}

	st, err := New(context.Background(), "c", []transport.Node{nodeA()}, mock, disc, &Options{RefreshThrottle: time.Microsecond})
	require.NoError(t, err)

	disc.mu.Lock()
	disc.gate = make(chan struct{})
	gate2 := disc.gate
	disc.mu.Unlock()

	var wg sync.WaitGroup
	const n = 10
	errs := make([]error, n)
	v := st.CurrentVersion()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.Refresh(context.Background(), v)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate2)
	wg.Wait()

	for _, e := range errs {
		assert.NoError(t, e)
	}
	disc.mu.Lock()
	calls := disc.calls
	disc.mu.Unlock()
	assert.Equal(t, 2, calls, "bootstrap + exactly one coalesced refresh, not one per caller")
}

type blockingDiscoverer struct {
	mu     sync.Mutex
	ranges []discovery.SlotRange
	gate   chan struct{}
	calls  int
}

func (d *blockingDiscoverer) Slots(ctx context.Context, t transport.Transport, conn transport.Conn) ([]discovery.SlotRange, error) {
	d.mu.Lock()
	gate := d.gate
	d.calls++
	d.mu.Unlock()
	<-gate
	return d.ranges, nil
}

func TestGetOrOpenConnectionReusesExisting(t *testing.T) {
	mock := transporttest.NewMock()
	disc := &fakeDiscoverer{ranges: []discovery.SlotRange{
		{Start: 0, End: parser.NumSlots - 1, Primary: nodeA()},
	}}
	st, err := New(context.Background(), "c", []transport.Node{nodeA()}, mock, disc, nil)
	require.NoError(t, err)

	_, err = st.GetOrOpenConnection(context.Background(), nodeB())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Opens(nodeB().Addr()))

	_, err = st.GetOrOpenConnection(context.Background(), nodeB())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Opens(nodeB().Addr()), "second call must reuse, not reopen")
}

func TestRefreshReassignsSlotsOnTopologyChange(t *testing.T) {
	mock := transporttest.NewMock()
	disc := &fakeDiscoverer{ranges: []discovery.SlotRange{
		{Start: 0, End: parser.NumSlots - 1, Primary: nodeA()},
	}}
	st, err := New(context.Background(), "c", []transport.Node{nodeA()}, mock, disc, &Options{RefreshThrottle: time.Microsecond})
	require.NoError(t, err)

	disc.mu.Lock()
	disc.ranges = []discovery.SlotRange{
		{Start: 0, End: 8000, Primary: nodeA()},
		{Start: 8001, End: parser.NumSlots - 1, Primary: nodeB()},
	}
	disc.mu.Unlock()

	err = st.Refresh(context.Background(), st.CurrentVersion())
	require.NoError(t, err)

	conn, version, ok := st.GetConnectionBySlot(9000)
	require.True(t, ok)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, nodeB(), conn.Node())
}
