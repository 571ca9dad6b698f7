package log

// MultiLogger fans events out to several loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger. Nil loggers are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)

// Recorder keeps every event in memory. Tests use it to assert on the
// event trace.
type Recorder struct {
	events chan Event
}

// NewRecorder returns a Recorder holding up to capacity events. Further
// events are dropped.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{events: make(chan Event, capacity)}
}

// Log stores the event if there is room.
func (r *Recorder) Log(event Event) {
	select {
	case r.events <- event:
	default:
	}
}

// Events drains and returns the recorded events.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

var _ Logger = (*Recorder)(nil)
