// Package registry is the process-wide map from cluster name to its
// Cluster State. Creation is idempotent per name: concurrent first-use
// produces exactly one Cluster State, with every other caller blocking on
// (and then sharing) that same bootstrap.
package registry

import (
	"context"
	"sync"

	"rkcluster/clusterstate"
	"rkcluster/discovery"
	"rkcluster/transport"
)

// Registry is a process-wide cluster-name -> Cluster State map. The zero
// value is not usable; construct one with New.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	once  sync.Once
	state *clusterstate.State
	err   error
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// Start creates the Cluster State for name, seeded by seeds, or returns the
// existing one if name was already started. Concurrent first-use from many
// goroutines produces exactly one Cluster State and one bootstrap refresh;
// everyone else observes its result.
func (r *Registry) Start(ctx context.Context, name string, seeds []transport.Node, tr transport.Transport, disc discovery.Discoverer, opts *clusterstate.Options) (*clusterstate.State, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{}
		r.entries[name] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.state, e.err = clusterstate.New(ctx, name, seeds, tr, disc, opts)
		if e.err != nil {
			// Don't pin a failed bootstrap: a later Start(name, ...) call
			// with working seeds should get another chance rather than
			// replaying the same error forever.
			r.mu.Lock()
			delete(r.entries, name)
			r.mu.Unlock()
		}
	})
	return e.state, e.err
}

// Lookup returns the Cluster State for name, if it has been started.
func (r *Registry) Lookup(name string) (*clusterstate.State, bool) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok || e.state == nil {
		return nil, false
	}
	return e.state, true
}
