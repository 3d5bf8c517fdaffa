package discovery

import (
	"context"
	"testing"

	"rkcluster/parser"
	"rkcluster/transport"
	"rkcluster/transport/transporttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoRangeReply() transport.Result {
	return transport.Result{
		Reply: []interface{}{
			[]interface{}{
				int64(0), int64(5460),
				[]interface{}{"10.0.0.1", int64(7000)},
				[]interface{}{"10.0.0.4", int64(7004)},
			},
			[]interface{}{
				int64(5461), int64(10922),
				[]interface{}{"10.0.0.2", int64(7001)},
			},
		},
	}
}

func TestSlotsParsesReply(t *testing.T) {
	mock := transporttest.NewMock()
	node := transport.Node{Host: "10.0.0.1", Port: 7000}
	mock.Handle(node.Addr(), func(cmd parser.Command) transport.Result {
		return twoRangeReply()
	})

	conn, err := mock.Open(context.Background(), node)
	require.NoError(t, err)

	ranges, err := GoRedisDiscoverer{}.Slots(context.Background(), mock, conn)
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	assert.Equal(t, 0, ranges[0].Start)
	assert.Equal(t, 5460, ranges[0].End)
	assert.Equal(t, "10.0.0.1", ranges[0].Primary.Host)
	assert.Equal(t, 7000, ranges[0].Primary.Port)
	require.Len(t, ranges[0].Replicas, 1)
	assert.Equal(t, "10.0.0.4", ranges[0].Replicas[0].Host)

	assert.Equal(t, 5461, ranges[1].Start)
	assert.Equal(t, 10922, ranges[1].End)
	assert.Equal(t, "10.0.0.2", ranges[1].Primary.Host)
}

func TestSlotsBlankPrimaryFallsBackToQueriedNode(t *testing.T) {
	mock := transporttest.NewMock()
	node := transport.Node{Host: "10.0.0.1", Port: 7000}
	mock.Handle(node.Addr(), func(cmd parser.Command) transport.Result {
		return transport.Result{
			Reply: []interface{}{
				[]interface{}{int64(0), int64(16383), []interface{}{"", int64(7000)}},
			},
		}
	})

	conn, err := mock.Open(context.Background(), node)
	require.NoError(t, err)

	ranges, err := GoRedisDiscoverer{}.Slots(context.Background(), mock, conn)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, node, ranges[0].Primary)
}

func TestSlotsEmptyReplyIsError(t *testing.T) {
	mock := transporttest.NewMock()
	node := transport.Node{Host: "10.0.0.1", Port: 7000}
	mock.Handle(node.Addr(), func(cmd parser.Command) transport.Result {
		return transport.Result{Reply: []interface{}{}}
	})
	conn, err := mock.Open(context.Background(), node)
	require.NoError(t, err)

	_, err = GoRedisDiscoverer{}.Slots(context.Background(), mock, conn)
	assert.Error(t, err)
}
