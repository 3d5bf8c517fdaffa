package connpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id int32 }

func TestGetDialsOnDemand(t *testing.T) {
	var n int32
	dial := func() (*fakeConn, error) {
		return &fakeConn{id: atomic.AddInt32(&n, 1)}, nil
	}
	p, err := New("n1:7000", 2, 5, dial, func(*fakeConn) error { return nil })
	require.NoError(t, err)

	c1, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, int32(1), c1.id)

	c2, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, int32(2), c2.id)
}

func TestPutThenGetReusesConnection(t *testing.T) {
	var n int32
	dial := func() (*fakeConn, error) {
		return &fakeConn{id: atomic.AddInt32(&n, 1)}, nil
	}
	p, err := New("n1:7000", 2, 5, dial, func(*fakeConn) error { return nil })
	require.NoError(t, err)

	c1, err := p.Get()
	require.NoError(t, err)
	p.Put(c1)

	c2, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, c1, c2, "Put then Get should hand back the same connection")
}

func TestPoolExhausted(t *testing.T) {
	dial := func() (*fakeConn, error) { return &fakeConn{}, nil }
	p, err := New("n1:7000", 1, 1, dial, func(*fakeConn) error { return nil })
	require.NoError(t, err)

	_, err = p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestDiscardClosesAndFreesSlot(t *testing.T) {
	dial := func() (*fakeConn, error) { return &fakeConn{}, nil }
	closed := 0
	closeFn := func(*fakeConn) error { closed++; return nil }
	p, err := New("n1:7000", 1, 1, dial, closeFn)
	require.NoError(t, err)

	c, err := p.Get()
	require.NoError(t, err)
	p.Discard(c)
	assert.Equal(t, 1, closed)

	// the slot should be free again
	_, err = p.Get()
	require.NoError(t, err)
}

func TestIllegalArguments(t *testing.T) {
	_, err := New("addr", 5, 1, func() (*fakeConn, error) { return nil, nil }, nil)
	assert.True(t, errors.Is(err, ErrIllegalArgument))
}

func TestZeroMaxActiveDefaultsBeforeSizeCheck(t *testing.T) {
	// size (150) exceeds defaultMaxActive (100): maxActive=0 must default
	// to 100 before the size check runs, so this is rejected rather than
	// allocating a negative-capacity channel.
	_, err := New("addr", 150, 0, func() (*fakeConn, error) { return nil, nil }, nil)
	assert.True(t, errors.Is(err, ErrIllegalArgument))
}

func TestZeroMaxActiveDefaultsWhenSizeFits(t *testing.T) {
	dial := func() (*fakeConn, error) { return &fakeConn{}, nil }
	p, err := New("addr", 10, 0, dial, func(*fakeConn) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, int32(defaultMaxActive), p.maxActive)
}

func TestEmptyClosesIdleConnections(t *testing.T) {
	dial := func() (*fakeConn, error) { return &fakeConn{}, nil }
	closed := 0
	p, err := New("n1:7000", 2, 2, dial, func(*fakeConn) error { closed++; return nil })
	require.NoError(t, err)

	c1, _ := p.Get()
	c2, _ := p.Get()
	p.Put(c1)
	p.Put(c2)

	p.Empty()
	assert.Equal(t, 2, closed)
	assert.Equal(t, 0, p.Avail())
}
