package discovery

import (
	"context"
	"fmt"

	"rkcluster/parser"
	"rkcluster/transport"
)

// GoRedisDiscoverer is the reference Discoverer: it issues CLUSTER SLOTS
// through the Transport interface (the same one commands go through) and
// parses the nested-array reply go-redis decodes into []interface{}.
type GoRedisDiscoverer struct{}

var clusterSlotsCmd = parser.Command{[]byte("CLUSTER"), []byte("SLOTS")}

func (GoRedisDiscoverer) Slots(ctx context.Context, t transport.Transport, conn transport.Conn) ([]SlotRange, error) {
	res := t.SendOne(ctx, conn, clusterSlotsCmd)
	if res.Err != nil {
		return nil, res.Err
	}
	top, ok := res.Reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("discovery: unexpected CLUSTER SLOTS reply type %T", res.Reply)
	}
	if len(top) == 0 {
		return nil, fmt.Errorf("discovery: empty CLUSTER SLOTS reply")
	}

	ranges := make([]SlotRange, 0, len(top))
	for _, elem := range top {
		group, ok := elem.([]interface{})
		if !ok || len(group) < 3 {
			return nil, fmt.Errorf("discovery: malformed slot group %v", elem)
		}

		start, err := toInt(group[0])
		if err != nil {
			return nil, fmt.Errorf("discovery: bad slot start: %w", err)
		}
		end, err := toInt(group[1])
		if err != nil {
			return nil, fmt.Errorf("discovery: bad slot end: %w", err)
		}

		primary, err := toNode(group[2])
		if err != nil {
			return nil, fmt.Errorf("discovery: bad primary entry: %w", err)
		}
		// The primary's own idea of its address is sometimes blank when
		// queried against itself; fall back to the connection we asked.
		if primary.Host == "" {
			primary = conn.Node()
		}

		var replicas []transport.Node
		for _, r := range group[3:] {
			rn, err := toNode(r)
			if err != nil {
				continue
			}
			replicas = append(replicas, rn)
		}

		ranges = append(ranges, SlotRange{
			Start:    start,
			End:      end,
			Primary:  primary,
			Replicas: replicas,
		})
	}
	return ranges, nil
}

func toNode(v interface{}) (transport.Node, error) {
	entry, ok := v.([]interface{})
	if !ok || len(entry) < 2 {
		return transport.Node{}, fmt.Errorf("malformed node entry %v", v)
	}
	host, ok := entry[0].(string)
	if !ok {
		return transport.Node{}, fmt.Errorf("node host not a string: %v", entry[0])
	}
	port, err := toInt(entry[1])
	if err != nil {
		return transport.Node{}, err
	}
	return transport.Node{Host: host, Port: port}, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("not an integer: %v (%T)", v, v)
	}
}
