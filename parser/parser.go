// Package parser extracts a routing key from a single command or a
// pipeline of commands and computes the Redis Cluster hash slot for it. It
// is the leaf of the core: it consumes only command bytes and the CRC16
// collaborator, and is consumed by the query engine.
package parser

import (
	"strings"

	"rkcluster/corerr"
	"rkcluster/internal/crc16"
)

// Command is a single Redis command: command name followed by its
// arguments, all as binary-safe byte strings.
type Command [][]byte

// Pipeline is an ordered sequence of commands submitted together.
type Pipeline []Command

// NumSlots is the number of hash slots Redis Cluster partitions keys into.
const NumSlots = crc16.NumSlots

// noKeyCommands have no routable key at all; KeyOf returns none for them.
var noKeyCommands = map[string]struct{}{
	"PING": {}, "INFO": {}, "TIME": {}, "RANDOMKEY": {}, "DBSIZE": {},
	"FLUSHALL": {}, "FLUSHDB": {}, "SCAN": {}, "CLUSTER": {}, "CLIENT": {},
	"COMMAND": {}, "CONFIG": {}, "LASTSAVE": {}, "SELECT": {}, "SHUTDOWN": {},
	"SUBSCRIBE": {}, "UNSUBSCRIBE": {}, "PUBLISH": {}, "SCRIPT": {}, "ASKING": {},
	"MULTI": {}, "EXEC": {}, "DISCARD": {}, "AUTH": {}, "ECHO": {},
}

// specialKeyPosition gives the key's token index for the commands listed,
// in place of the default "key is the first argument" (token index 1)
// rule. The ZADD and GEORADIUS_RO entries give index 1, same as the
// default.
var specialKeyPosition = map[string]int{
	"EVAL": 3, "EVALSHA": 3, "EVAL_RO": 3, "EVALSHA_RO": 3,
	"FCALL": 3, "FCALL_RO": 3, "GEORADIUS_RO": 1, "ZADD": 1,
}

// KeyOf returns the bytes of the routing key for a single command, or false
// if the command has no routable key.
func KeyOf(cmd Command) ([]byte, bool) {
	if len(cmd) == 0 {
		return nil, false
	}
	name := strings.ToUpper(string(cmd[0]))
	if _, noKey := noKeyCommands[name]; noKey {
		return nil, false
	}

	pos := 1
	if p, ok := specialKeyPosition[name]; ok {
		pos = p
	}
	if pos >= len(cmd) {
		return nil, false
	}
	return cmd[pos], true
}

// SlotOf returns the hash slot in [0, NumSlots) a key routes to. A hash tag
// — the bytes between the first '{' and its matching '}' — is hashed
// instead of the whole key when present and non-empty.
func SlotOf(key []byte) int {
	if tag, ok := hashTag(key); ok {
		key = tag
	}
	return crc16.Slot(key)
}

// hashTag extracts the {...} hash tag substring from key, if one is
// present and non-empty.
func hashTag(key []byte) ([]byte, bool) {
	start := -1
	for i, b := range key {
		if b == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}
	end := -1
	for i := start + 1; i < len(key); i++ {
		if key[i] == '}' {
			end = i
			break
		}
	}
	if end < 0 || end == start+1 {
		return nil, false
	}
	return key[start+1 : end], true
}

// KeySlot resolves a single command straight to its slot, or returns
// corerr.ErrInvalidKey when it has no routable key.
func KeySlot(cmd Command) (int, error) {
	key, ok := KeyOf(cmd)
	if !ok {
		return 0, corerr.ErrInvalidKey
	}
	return SlotOf(key), nil
}

// CheckSameSlot reports whether every command in the pipeline hashes to the
// same slot. It is a sanity check only: callers are expected to warn, not
// reject, a pipeline that fails it — mixed-slot pipelines are still
// executed, just split and re-dispatched per slot by the query engine.
func CheckSameSlot(p Pipeline) (same bool, err error) {
	if len(p) == 0 {
		return true, nil
	}
	first, err := KeySlot(p[0])
	if err != nil {
		return false, err
	}
	for _, cmd := range p[1:] {
		s, err := KeySlot(cmd)
		if err != nil {
			return false, err
		}
		if s != first {
			return false, nil
		}
	}
	return true, nil
}
