package log

import (
	"github.com/sirupsen/logrus"
)

// LogrusAdapter writes events to a logrus logger.
type LogrusAdapter struct {
	logger logrus.FieldLogger
}

// NewLogrusAdapter returns an adapter writing to logger.
func NewLogrusAdapter(logger logrus.FieldLogger) *LogrusAdapter {
	return &LogrusAdapter{logger: logger}
}

// Log writes the event at Debug level, or Warn level for errors.
func (a *LogrusAdapter) Log(event Event) {
	fields := logrus.Fields{}
	for _, f := range eventFields(event) {
		fields[f.key] = f.value
	}

	entry := a.logger.WithFields(fields)
	if event.Category == CategoryError {
		entry.Warn("binding")
		return
	}
	entry.Debug("binding")
}

var _ Logger = (*LogrusAdapter)(nil)
