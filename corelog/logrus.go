package corelog

import "github.com/sirupsen/logrus"

// logrusLogger adapts *logrus.Entry to the Logger interface. This is the
// default Logger the facade wires in when the caller doesn't supply one.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrus wraps l (or logrus.StandardLogger() if l is nil) as a Logger.
func NewLogrus(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return logrusLogger{entry: logrus.NewEntry(l)}
}

func (l logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
