package corelog

import "testing"

func TestDiscardDoesNotPanic(t *testing.T) {
	l := Discard
	l.Debugf("x=%d", 1)
	l.Infof("x=%d", 1)
	l.Warnf("x=%d", 1)
	l.Errorf("x=%d", 1)
	l.WithFields(map[string]interface{}{"a": 1}).Infof("nested")
}
