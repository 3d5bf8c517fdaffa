package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeAddr(t *testing.T) {
	n := Node{Host: "10.0.0.5", Port: 7001}
	assert.Equal(t, "10.0.0.5:7001", n.Addr())
}

func TestResultOk(t *testing.T) {
	assert.True(t, Result{Reply: "OK"}.Ok())
	assert.False(t, Result{Err: errors.New("boom")}.Ok())
}

func TestToArgs(t *testing.T) {
	args := toArgs([][]byte{[]byte("GET"), []byte("foo")})
	assert.Equal(t, []interface{}{[]byte("GET"), []byte("foo")}, args)
}
