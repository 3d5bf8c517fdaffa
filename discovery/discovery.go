// Package discovery issues CLUSTER SLOTS against a known-good connection
// and parses the result into the slot ranges Cluster State rebuilds its
// slot map from. It is a narrow collaborator: Cluster State depends only on
// the Discoverer interface, never on the wire format directly.
package discovery

import (
	"context"

	"rkcluster/transport"
)

// SlotRange is one (slot_lo, slot_hi) -> primary mapping from a CLUSTER
// SLOTS reply. Replicas are carried along for observability; the core
// targets primaries only.
type SlotRange struct {
	Start, End int
	Primary    transport.Node
	Replicas   []transport.Node
}

// Discoverer is the topology-discovery collaborator Cluster State consumes.
type Discoverer interface {
	// Slots issues CLUSTER SLOTS over conn and returns the parsed slot
	// ranges.
	Slots(ctx context.Context, t transport.Transport, conn transport.Conn) ([]SlotRange, error)
}
