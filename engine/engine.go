package engine

import (
	"context"
	"fmt"
	"sort"

	"rkcluster/clusterstate"
	"rkcluster/corerr"
	"rkcluster/parser"
	"rkcluster/transport"
)

// RunSingle executes one command against the named cluster, handling
// redirection and transient retries transparently.
func RunSingle(ctx context.Context, state *clusterstate.State, tr transport.Transport, cfg Config, clusterName string, cmd parser.Command) transport.Result {
	cfg = cfg.withDefaults()

	slot, err := parser.KeySlot(cmd)
	if err != nil {
		cfg.Metrics.QueryDone(false)
		return transport.Result{Err: err}
	}

	q := &Query{
		ClusterName: clusterName,
		Orig:        parser.Pipeline{cmd},
		Indices:     []int{0},
		Slot:        slot,
	}
	results := run(ctx, state, tr, cfg, q)
	if len(results) != 1 {
		// Unreachable given Indices has exactly one entry throughout a
		// single command's lifetime, but fail closed rather than panic.
		cfg.Metrics.QueryDone(false)
		return transport.Result{Err: fmt.Errorf("engine: expected exactly one result, got %d", len(results))}
	}
	res := results[0].Result
	cfg.Metrics.QueryDone(res.Ok())
	return res
}

// RunPipeline executes an ordered sequence of commands as one pipeline,
// returning results in the caller's submission order regardless of how
// sub-commands were split, redirected, or retried along the way.
func RunPipeline(ctx context.Context, state *clusterstate.State, tr transport.Transport, cfg Config, clusterName string, pipeline parser.Pipeline) []transport.Result {
	cfg = cfg.withDefaults()

	n := len(pipeline)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	// The whole pipeline is dispatched together on its first attempt; its
	// routing slot is taken from the first sub-command that has one. A
	// mixed-slot pipeline is still executed — CheckSameSlot is a sanity
	// warning, not a precondition — it is simply split into independent
	// per-command retries the first time any sub-command errors.
	slot, err := firstRoutableSlot(pipeline)
	if err != nil {
		out := make([]transport.Result, n)
		for i := range out {
			out[i] = transport.Result{Err: err}
		}
		cfg.Metrics.QueryDone(false)
		return out
	}

	if same, chkErr := parser.CheckSameSlot(pipeline); chkErr == nil && !same {
		cfg.Logger.Warnf("engine: %s: pipeline of %d commands spans multiple slots", clusterName, n)
	}

	q := &Query{
		ClusterName: clusterName,
		Orig:        pipeline,
		Indices:     indices,
		Slot:        slot,
	}
	results := run(ctx, state, tr, cfg, q)

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	out := make([]transport.Result, n)
	allOk := true
	for _, r := range results {
		out[r.Index] = r.Result
		if !r.Result.Ok() {
			allOk = false
		}
	}
	cfg.Metrics.QueryDone(allOk)
	return out
}

func firstRoutableSlot(p parser.Pipeline) (int, error) {
	for _, cmd := range p {
		if slot, err := parser.KeySlot(cmd); err == nil {
			return slot, nil
		}
	}
	return 0, corerr.ErrInvalidKey
}

// run is Entry (by slot): it resolves a connection for q.Slot, requesting
// a refresh and retrying when the slot is unmapped, then hands off to
// execute. A Query arriving with Conn already set (every retry the
// classifier produces) skips straight to execute.
func run(ctx context.Context, state *clusterstate.State, tr transport.Transport, cfg Config, q *Query) []subResult {
	for q.Conn == nil {
		if q.Retries >= cfg.TTL {
			return broadcast(q, transport.Result{Err: corerr.ErrNoConnection})
		}
		conn, version, ok := state.GetConnectionBySlot(q.Slot)
		if !ok {
			go func(observed uint64) { _ = state.Refresh(context.Background(), observed) }(q.VersionObserved)
			cfg.Metrics.Retry("no_connection")
			q.Retries++
			continue
		}
		q.Conn = conn
		q.VersionObserved = version
	}
	return execute(ctx, state, tr, cfg, q)
}

// execute is Execute: it dispatches the query's current command batch,
// classifies the reply, and recurses into run for whatever the classifier
// says still needs retrying.
func execute(ctx context.Context, state *clusterstate.State, tr transport.Transport, cfg Config, q *Query) []subResult {
	if q.Retries >= cfg.TTL {
		return ttlExhausted(q)
	}
	if q.Retries > 0 {
		if err := cfg.limiter.Wait(ctx); err != nil {
			return ttlExhausted(q)
		}
	}

	cmds := q.dispatch()
	if len(cmds) == 1 {
		q.Response = []transport.Result{tr.SendOne(ctx, q.Conn, cmds[0])}
	} else {
		q.Response = tr.SendPipeline(ctx, q.Conn, cmds)
	}

	successes, retries := classify(ctx, state, q, cfg)
	if len(retries) == 0 {
		return successes
	}

	out := make([]subResult, 0, len(successes)+len(retries))
	out = append(out, successes...)
	for _, rq := range retries {
		out = append(out, run(ctx, state, tr, cfg, rq)...)
	}
	return out
}

// ttlExhausted returns the query's most recently observed error for every
// index it still owns, verbatim, once the retry budget has run out.
func ttlExhausted(q *Query) []subResult {
	if q.Response == nil {
		return broadcast(q, transport.Result{Err: corerr.New(corerr.KindTTLExhausted, nil)})
	}
	offset := q.responseOffset()
	out := make([]subResult, 0, len(q.Indices))
	for j, idx := range q.Indices {
		pos := offset + j
		var res transport.Result
		if pos < len(q.Response) {
			res = q.Response[pos]
		} else {
			res = transport.Result{Err: corerr.New(corerr.KindTTLExhausted, nil)}
		}
		out = append(out, subResult{Index: idx, Result: res})
	}
	return out
}

// broadcast assigns the same result to every index q is responsible for,
// used when the query never got far enough to have a per-index response
// (e.g. the slot never resolved to a connection).
func broadcast(q *Query, res transport.Result) []subResult {
	out := make([]subResult, 0, len(q.Indices))
	for _, idx := range q.Indices {
		out = append(out, subResult{Index: idx, Result: res})
	}
	return out
}
