// Package metrics exposes Prometheus collectors for the query engine and
// cluster state. It is an injectable collaborator like corelog.Logger: the
// core never reaches for a global registry, it increments whatever
// Collector it was constructed with.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector is the set of counters/histograms the engine and cluster state
// report to. A nil *Collector is valid and every method on it is a no-op,
// so callers that don't care about metrics can skip wiring one up.
type Collector struct {
	QueriesTotal    *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	RedirectsTotal  *prometheus.CounterVec
	RefreshesTotal  prometheus.Counter
	RefreshDuration prometheus.Histogram
}

// NewCollector builds a Collector and registers it with reg. namespace
// prefixes every metric name (e.g. "rkcluster").
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total queries dispatched, labeled by outcome (ok, error).",
		}, []string{"outcome"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total sub-query retries, labeled by reason (moved, ask, transient, no_connection).",
		}, []string{"reason"}),
		RedirectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Total MOVED/ASK redirections observed, labeled by kind.",
		}, []string{"kind"}),
		RefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Total completed topology refreshes (CLUSTER SLOTS round trips).",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a topology refresh round trip.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(c.QueriesTotal, c.RetriesTotal, c.RedirectsTotal, c.RefreshesTotal, c.RefreshDuration)
	}
	return c
}

func (c *Collector) queryDone(ok bool) {
	if c == nil {
		return
	}
	label := "ok"
	if !ok {
		label = "error"
	}
	c.QueriesTotal.WithLabelValues(label).Inc()
}

func (c *Collector) retry(reason string) {
	if c == nil {
		return
	}
	c.RetriesTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) redirect(kind string) {
	if c == nil {
		return
	}
	c.RedirectsTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) refresh(seconds float64) {
	if c == nil {
		return
	}
	c.RefreshesTotal.Inc()
	c.RefreshDuration.Observe(seconds)
}

// QueryDone records a completed top-level Q/QP call.
func (c *Collector) QueryDone(ok bool) { c.queryDone(ok) }

// Retry records one sub-query retry for reason ("moved", "ask",
// "transient", "no_connection").
func (c *Collector) Retry(reason string) { c.retry(reason) }

// Redirect records one MOVED or ASK redirection.
func (c *Collector) Redirect(kind string) { c.redirect(kind) }

// RefreshObserved records one completed physical CLUSTER SLOTS round trip.
func (c *Collector) RefreshObserved(seconds float64) { c.refresh(seconds) }
