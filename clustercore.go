// Package rkcluster is the outer shim the rest of this repository's
// internals serve: Start/Q/QP validate caller input and hand off to the
// Query Engine, holding no cluster logic of their own. A process that
// imports only this package gets a fully wired client, built from the
// default reference transport, discoverer, and logger; every collaborator
// can still be overridden with an Option for tests or alternate backends.
package rkcluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rkcluster/clusterstate"
	"rkcluster/corelog"
	"rkcluster/discovery"
	"rkcluster/engine"
	"rkcluster/metrics"
	"rkcluster/parser"
	"rkcluster/registry"
	"rkcluster/transport"
)

var defaultRegistry = registry.New()

// startedWith records the transport and engine Config each named cluster
// was started with, so Q/QP dispatch through the exact same collaborators
// rather than a freshly constructed, merely-compatible one.
var startedWith = struct {
	mu     sync.Mutex
	byName map[string]*settings
}{byName: map[string]*settings{}}

// QueryResult is the caller-facing outcome of one command.
type QueryResult struct {
	Reply interface{}
	Err   error
}

// Option configures Start beyond a cluster name and its seed nodes.
type Option func(*settings)

type settings struct {
	transport  transport.Transport
	discoverer discovery.Discoverer
	logger     corelog.Logger
	metrics    *metrics.Collector
	state      clusterstate.Options
	engine     engine.Config
}

// WithTransport overrides the reference go-redis transport.
func WithTransport(t transport.Transport) Option {
	return func(s *settings) { s.transport = t }
}

// WithDiscoverer overrides the reference CLUSTER SLOTS discoverer.
func WithDiscoverer(d discovery.Discoverer) Option {
	return func(s *settings) { s.discoverer = d }
}

// WithLogger overrides the default logrus-backed Logger.
func WithLogger(l corelog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics attaches a Prometheus Collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *settings) { s.metrics = m }
}

// WithRefreshThrottle overrides the minimum interval between physical
// CLUSTER SLOTS round trips.
func WithRefreshThrottle(d time.Duration) Option {
	return func(s *settings) { s.state.RefreshThrottle = d }
}

// WithEngineConfig overrides the request TTL and retry delay.
func WithEngineConfig(c engine.Config) Option {
	return func(s *settings) { s.engine = c }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		transport:  transport.NewGoRedisTransport(10),
		discoverer: discovery.GoRedisDiscoverer{},
		logger:     corelog.NewLogrus(nil),
		engine:     engine.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Logger = s.logger
	s.engine.Metrics = s.metrics
	s.state.Logger = s.logger
	s.state.Metrics = s.metrics
	return s
}

// Start creates the Cluster State for cluster_name, seeded by seedNodes.
// It is idempotent per name: a second Start for the same name with the
// same or different seeds returns the already-running cluster.
func Start(ctx context.Context, clusterName string, seedNodes []transport.Node, opts ...Option) error {
	if clusterName == "" {
		return fmt.Errorf("rkcluster: cluster name must not be empty")
	}
	if len(seedNodes) == 0 {
		return fmt.Errorf("rkcluster: %s: at least one seed node is required", clusterName)
	}
	s := newSettings(opts)
	_, err := defaultRegistry.Start(ctx, clusterName, seedNodes, s.transport, s.discoverer, &s.state)
	if err != nil {
		return err
	}
	startedWith.mu.Lock()
	if _, ok := startedWith.byName[clusterName]; !ok {
		startedWith.byName[clusterName] = s
	}
	startedWith.mu.Unlock()
	return nil
}

// Q executes a single command against the named cluster, started earlier
// by Start.
func Q(ctx context.Context, clusterName string, command parser.Command) QueryResult {
	if len(command) == 0 {
		return QueryResult{Err: fmt.Errorf("rkcluster: %s: command must not be empty", clusterName)}
	}
	state, s, ok := lookup(clusterName)
	if !ok {
		return QueryResult{Err: fmt.Errorf("rkcluster: cluster %q was never started", clusterName)}
	}
	res := engine.RunSingle(ctx, state, s.transport, s.engine, clusterName, command)
	return QueryResult{Reply: res.Reply, Err: res.Err}
}

// QP executes an ordered pipeline of commands against the named cluster,
// returning one QueryResult per command in the caller's submission order.
func QP(ctx context.Context, clusterName string, pipeline parser.Pipeline) []QueryResult {
	if len(pipeline) == 0 {
		return []QueryResult{{Err: fmt.Errorf("rkcluster: %s: pipeline must not be empty", clusterName)}}
	}
	state, s, ok := lookup(clusterName)
	if !ok {
		out := make([]QueryResult, len(pipeline))
		err := fmt.Errorf("rkcluster: cluster %q was never started", clusterName)
		for i := range out {
			out[i] = QueryResult{Err: err}
		}
		return out
	}
	results := engine.RunPipeline(ctx, state, s.transport, s.engine, clusterName, pipeline)
	out := make([]QueryResult, len(results))
	for i, r := range results {
		out[i] = QueryResult{Reply: r.Reply, Err: r.Err}
	}
	return out
}

func lookup(clusterName string) (*clusterstate.State, *settings, bool) {
	state, ok := defaultRegistry.Lookup(clusterName)
	if !ok {
		return nil, nil, false
	}
	startedWith.mu.Lock()
	s := startedWith.byName[clusterName]
	startedWith.mu.Unlock()
	if s == nil {
		s = newSettings(nil)
	}
	return state, s, true
}
