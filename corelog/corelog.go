// Package corelog defines the narrow logging interface the core consumes.
// Process supervision/logging is an external collaborator: the engine,
// cluster state, and registry never import a concrete logging library
// directly, only this interface.
package corelog

// Logger is the narrow interface the core logs through. It mirrors the
// informational signals the teacher package exposed over plain channels
// (slot misses, topology changes) but as structured log lines instead.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	// WithFields returns a Logger that includes the given structured
	// fields on every subsequent call.
	WithFields(fields map[string]interface{}) Logger
}

// discard is a Logger that drops everything. Used as the default when no
// Logger is supplied, and in tests.
type discard struct{}

func (discard) Debugf(string, ...interface{})             {}
func (discard) Infof(string, ...interface{})              {}
func (discard) Warnf(string, ...interface{})              {}
func (discard) Errorf(string, ...interface{})             {}
func (d discard) WithFields(map[string]interface{}) Logger { return d }

// Discard is a Logger that silently drops every call.
var Discard Logger = discard{}
