package engine

import (
	"context"
	"strconv"
	"strings"

	"rkcluster/clusterstate"
	"rkcluster/transport"
)

// redirect is a parsed MOVED/ASK error.
type redirect struct {
	kind string // "MOVED" or "ASK"
	slot int
	node transport.Node
}

// parseRedirect recognizes "MOVED <slot> <host>:<port>" and
// "ASK <slot> <host>:<port>". A malformed payload of either shape (bad
// integer, missing host:port) is reported as not-a-redirect so the caller
// falls through to the transient catch-all, per §8's boundary behaviors.
func parseRedirect(msg string) (redirect, bool) {
	fields := strings.Fields(msg)
	if len(fields) != 3 {
		return redirect{}, false
	}
	kind := fields[0]
	if kind != "MOVED" && kind != "ASK" {
		return redirect{}, false
	}
	slot, err := strconv.Atoi(fields[1])
	if err != nil {
		return redirect{}, false
	}
	host, portStr, ok := strings.Cut(fields[2], ":")
	if !ok || host == "" || portStr == "" {
		return redirect{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return redirect{}, false
	}
	return redirect{kind: kind, slot: slot, node: transport.Node{Host: host, Port: port}}, true
}

// classify applies §4.4's Classifier to every result in q.Response,
// producing terminal successes and a flat list of singleton retry Querys.
func classify(ctx context.Context, state *clusterstate.State, q *Query, cfg Config) (successes []subResult, retries []*Query) {
	offset := q.responseOffset()
	for j, idx := range q.Indices {
		res := q.Response[offset+j]
		if res.Err == nil {
			successes = append(successes, subResult{Index: idx, Result: res})
			continue
		}
		if q.Retries+1 >= cfg.TTL {
			// No retry budget left: this is the last observed error and is
			// returned verbatim.
			successes = append(successes, subResult{Index: idx, Result: res})
			continue
		}

		rd, ok := parseRedirect(res.Err.Error())
		if !ok {
			// transient_server_error or transport_error: retry with no
			// routing change.
			cfg.Metrics.Retry("transient")
			retries = append(retries, &Query{
				ClusterName:     q.ClusterName,
				Orig:            q.Orig,
				Indices:         []int{idx},
				Asking:          q.Asking,
				Slot:            q.Slot,
				Conn:            q.Conn,
				VersionObserved: q.VersionObserved,
				Retries:         q.Retries + 1,
			})
			continue
		}

		conn, err := state.GetOrOpenConnection(ctx, rd.node)
		if err != nil {
			// Redirection to an unreachable node: terminal, no further
			// retry (§4.4 Failure semantics).
			successes = append(successes, subResult{Index: idx, Result: res})
			continue
		}

		switch rd.kind {
		case "MOVED":
			cfg.Metrics.Redirect("moved")
			cfg.Metrics.Retry("moved")
			go func(observed uint64) { _ = state.Refresh(context.Background(), observed) }(q.VersionObserved)
			retries = append(retries, &Query{
				ClusterName:     q.ClusterName,
				Orig:            q.Orig,
				Indices:         []int{idx},
				Asking:          false,
				Slot:            rd.slot,
				Conn:            conn,
				VersionObserved: q.VersionObserved,
				Retries:         q.Retries + 1,
			})
		case "ASK":
			cfg.Metrics.Redirect("ask")
			cfg.Metrics.Retry("ask")
			retries = append(retries, &Query{
				ClusterName:     q.ClusterName,
				Orig:            q.Orig,
				Indices:         []int{idx},
				Asking:          true,
				Slot:            rd.slot,
				Conn:            conn,
				VersionObserved: q.VersionObserved,
				Retries:         q.Retries + 1,
			})
		}
	}
	return successes, retries
}
