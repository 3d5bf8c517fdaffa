// Package corerr defines the small typed error hierarchy the query engine
// and cluster state report through, so callers can distinguish the core's
// recoverable/terminal outcomes with errors.As instead of string-matching
// server error text.
package corerr

import "fmt"

// Kind classifies a CoreError the way the redirection classifier does.
type Kind int

const (
	// KindInvalidKey means no routable key could be derived from the
	// command. Terminal.
	KindInvalidKey Kind = iota
	// KindNoConnection means the slot has no mapped connection, in a
	// fresh or stale map. Recoverable by refresh; counts toward TTL.
	KindNoConnection
	// KindMoved is a routing error: the slot's owner changed.
	KindMoved
	// KindAsk means the slot is mid-migration.
	KindAsk
	// KindTransient is any other server-returned error (TRYAGAIN,
	// CLUSTERDOWN, etc). Retried without a routing change.
	KindTransient
	// KindTransport is a connection-level failure reported by the
	// transport. Treated as transient.
	KindTransport
	// KindTTLExhausted is terminal: retries ran out before success.
	KindTTLExhausted
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid_cluster_key"
	case KindNoConnection:
		return "no_connection"
	case KindMoved:
		return "moved"
	case KindAsk:
		return "ask"
	case KindTransient:
		return "transient_server_error"
	case KindTransport:
		return "transport_error"
	case KindTTLExhausted:
		return "ttl_exhausted"
	default:
		return "unknown"
	}
}

// CoreError is the error type of the core's own outcomes (no routable key,
// no connection, retry budget spent with no reply seen). Server and
// transport errors reach the caller unwrapped, as the transport reported
// them.
type CoreError struct {
	Kind Kind
	// Raw is the server's original error text, when this error wraps one
	// (MOVED/ASK/transient). Empty for purely local errors.
	Raw string
	Err error
}

func (e *CoreError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Raw)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *CoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, corerr.ErrInvalidKey) style checks work: it
// reports whether target is a *CoreError of the same Kind. The target's
// Raw and Err are not compared.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a CoreError of the given kind with no server payload.
func New(kind Kind, err error) *CoreError {
	return &CoreError{Kind: kind, Err: err}
}

// FromServer builds a CoreError of the given kind carrying a server's raw
// error text (MOVED, ASK, or transient_server_error). The engine does not
// call it: it returns server errors unwrapped.
func FromServer(kind Kind, raw string) *CoreError {
	return &CoreError{Kind: kind, Raw: raw}
}

// ErrInvalidKey is the sentinel terminal error returned when no routable key
// could be derived from a command.
var ErrInvalidKey = &CoreError{Kind: KindInvalidKey}

// ErrNoConnection is returned when a slot has no mapped connection and the
// query's retry budget was exhausted trying to acquire one.
var ErrNoConnection = &CoreError{Kind: KindNoConnection, Raw: "no_connection"}
