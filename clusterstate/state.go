// Package clusterstate owns, per cluster name, the authoritative slot map,
// the set of open node connections, and the monotonic map version. It is
// the single serialization point for topology refreshes and connection
// creation; everything else in the core reads through an atomically
// published immutable snapshot.
package clusterstate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rkcluster/corelog"
	"rkcluster/discovery"
	"rkcluster/metrics"
	"rkcluster/parser"
	"rkcluster/transport"

	"golang.org/x/time/rate"
)

// connEntry pairs a live connection with the node it was opened for.
type connEntry struct {
	node transport.Node
	conn transport.Conn
}

// snapshot is the immutable slot map published on every successful
// refresh. Readers take a pointer to one and never see a partial update.
type snapshot struct {
	version uint64
	slots   [parser.NumSlots]*connEntry
}

// refreshWait lets concurrent Refresh callers coalesce onto one physical
// CLUSTER SLOTS round trip: the first caller performs it and closes ch when
// done; everyone else just waits on ch and shares err.
type refreshWait struct {
	ch  chan struct{}
	err error
}

// State is the per-cluster authoritative owner described in §4.3.
type State struct {
	Name string

	transport  transport.Transport
	discoverer discovery.Discoverer
	log        corelog.Logger
	metrics    *metrics.Collector

	snap atomic.Pointer[snapshot]

	mu              sync.Mutex
	connections     map[string]*connEntry
	refreshInFlight *refreshWait
	refreshLimiter  *rate.Limiter
}

// Options configures a State beyond its required collaborators.
type Options struct {
	// RefreshThrottle is the minimum interval between two physical
	// CLUSTER SLOTS round trips; it guards against refresh storms that
	// version coalescing alone can't fully prevent. Default 10s.
	RefreshThrottle time.Duration
	Logger          corelog.Logger
	Metrics         *metrics.Collector
}

func (o *Options) withDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.RefreshThrottle <= 0 {
		out.RefreshThrottle = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = corelog.Discard
	}
	return &out
}

// New bootstraps a Cluster State for name from the given seed nodes: it
// connects to the first reachable seed and performs one synchronous
// topology refresh, so the returned State has a complete slot map before
// any query runs against it.
func New(ctx context.Context, name string, seeds []transport.Node, tr transport.Transport, disc discovery.Discoverer, opts *Options) (*State, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("clusterstate: %s: no seed nodes given", name)
	}
	o := opts.withDefaults()

	s := &State{
		Name:           name,
		transport:      tr,
		discoverer:     disc,
		log:            o.Logger,
		metrics:        o.Metrics,
		connections:    map[string]*connEntry{},
		refreshLimiter: rate.NewLimiter(rate.Every(o.RefreshThrottle), 1),
	}
	s.storeSnapshot(&snapshot{version: 0})

	var lastErr error
	for _, seed := range seeds {
		conn, err := tr.Open(ctx, seed)
		if err != nil {
			lastErr = err
			continue
		}
		s.connections[seed.Addr()] = &connEntry{node: seed, conn: conn}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("clusterstate: %s: no reachable seed node: %w", name, lastErr)
	}

	if err := s.doRefresh(ctx); err != nil {
		return nil, fmt.Errorf("clusterstate: %s: initial topology discovery failed: %w", name, err)
	}
	return s, nil
}

func (s *State) loadSnapshot() *snapshot {
	snap := s.snap.Load()
	if snap == nil {
		return &snapshot{}
	}
	return snap
}

func (s *State) storeSnapshot(snap *snapshot) {
	s.snap.Store(snap)
}

// GetConnectionBySlot is a pure read: it never blocks on a refresh.
func (s *State) GetConnectionBySlot(slot int) (transport.Conn, uint64, bool) {
	snap := s.loadSnapshot()
	e := snap.slots[slot]
	if e == nil {
		return nil, snap.version, false
	}
	return e.conn, snap.version, true
}

// CurrentVersion returns the map version of the most recently published
// snapshot.
func (s *State) CurrentVersion() uint64 {
	return s.loadSnapshot().version
}

// GetOrOpenConnection returns the existing connection to node, opening one
// if necessary. Opening is serialized against every other mutation of the
// connection table.
func (s *State) GetOrOpenConnection(ctx context.Context, node transport.Node) (transport.Conn, error) {
	addr := node.Addr()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.connections[addr]; ok {
		return e.conn, nil
	}
	conn, err := s.transport.Open(ctx, node)
	if err != nil {
		return nil, err
	}
	s.connections[addr] = &connEntry{node: node, conn: conn}
	return conn, nil
}

// Refresh requests a topology refresh. If observedVersion predates the
// version already published, the request is a no-op: a newer refresh
// already happened. Concurrent callers whose observedVersion is the
// current (or a stale) version coalesce onto a single physical
// CLUSTER SLOTS round trip.
func (s *State) Refresh(ctx context.Context, observedVersion uint64) error {
	if observedVersion < s.CurrentVersion() {
		return nil
	}

	s.mu.Lock()
	if s.refreshInFlight != nil {
		wait := s.refreshInFlight
		s.mu.Unlock()
		<-wait.ch
		return wait.err
	}
	wait := &refreshWait{ch: make(chan struct{})}
	s.refreshInFlight = wait
	s.mu.Unlock()

	err := s.doRefresh(ctx)

	s.mu.Lock()
	s.refreshInFlight = nil
	s.mu.Unlock()

	wait.err = err
	close(wait.ch)
	return err
}

// doRefresh performs the actual CLUSTER SLOTS round trip and publishes a
// new snapshot. Callers must ensure only one of these runs at a time (via
// Refresh's coalescing); doRefresh itself does not re-check coalescing.
func (s *State) doRefresh(ctx context.Context) error {
	if !s.refreshLimiter.Allow() {
		s.log.Debugf("clusterstate: %s: refresh throttled, skipping", s.Name)
		return nil
	}

	start := time.Now()
	ranges, usedAddr, err := s.discoverSlots(ctx)
	if err != nil {
		s.log.Warnf("clusterstate: %s: topology discovery failed: %v", s.Name, err)
		return err
	}

	newConns := map[string]*connEntry{}
	var slots [parser.NumSlots]*connEntry

	s.mu.Lock()
	existing := s.connections
	s.mu.Unlock()

	for _, r := range ranges {
		addr := r.Primary.Addr()
		entry, ok := newConns[addr]
		if !ok {
			if old, ok := existing[addr]; ok {
				entry = old
			} else {
				conn, err := s.transport.Open(ctx, r.Primary)
				if err != nil {
					s.log.Warnf("clusterstate: %s: could not open new node %s: %v", s.Name, addr, err)
					continue
				}
				entry = &connEntry{node: r.Primary, conn: conn}
			}
			newConns[addr] = entry
		}
		for i := r.Start; i <= r.End && i < parser.NumSlots; i++ {
			slots[i] = entry
		}
	}
	// Always keep the connection we used to discover, even if somehow no
	// slot range claims it, so the next refresh still has somewhere to
	// start from.
	if used, ok := existing[usedAddr]; ok {
		if _, present := newConns[usedAddr]; !present {
			newConns[usedAddr] = used
		}
	}

	s.mu.Lock()
	s.connections = newConns
	s.mu.Unlock()

	newVersion := s.loadSnapshot().version + 1
	s.storeSnapshot(&snapshot{version: newVersion, slots: slots})

	s.metrics.RefreshObserved(time.Since(start).Seconds())
	s.log.Infof("clusterstate: %s: refreshed topology, version=%d, ranges=%d", s.Name, newVersion, len(ranges))
	return nil
}

// discoverSlots tries every currently known connection, in map iteration
// order, until one answers CLUSTER SLOTS successfully.
func (s *State) discoverSlots(ctx context.Context) ([]discovery.SlotRange, string, error) {
	s.mu.Lock()
	candidates := make([]*connEntry, 0, len(s.connections))
	for _, e := range s.connections {
		candidates = append(candidates, e)
	}
	s.mu.Unlock()

	var lastErr error
	for _, e := range candidates {
		ranges, err := s.discoverer.Slots(ctx, s.transport, e.conn)
		if err == nil {
			return ranges, e.node.Addr(), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("clusterstate: %s: no known connections to discover topology from", s.Name)
	}
	return nil, "", lastErr
}
