package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at Debug level, or Warn level
// for error events.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	fields := eventFields(event)
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.key, f.value))
	}

	level := slog.LevelDebug
	if event.Category == CategoryError {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(context.Background(), level, "binding", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)

type field struct {
	key   string
	value any
}

// eventFields flattens an event into ordered key/value pairs shared by the
// slog and logrus adapters.
func eventFields(event Event) []field {
	fields := []field{
		{"device_id", event.DeviceID},
		{"layer", event.Layer.String()},
		{"category", event.Category.String()},
	}
	if event.Signal != "" {
		fields = append(fields, field{"signal", event.Signal}, field{"direction", event.Direction})
	}
	if event.Slot != "" {
		fields = append(fields, field{"slot", event.Slot})
	}

	switch {
	case event.Binding != nil:
		fields = append(fields,
			field{"action", event.Binding.Action.String()},
			field{"binding_id", event.Binding.BindingID},
			field{"remaining", event.Binding.Remaining},
		)
		if event.Binding.FromSlot != "" {
			fields = append(fields, field{"from_slot", event.Binding.FromSlot})
		}
	case event.Value != nil:
		fields = append(fields,
			field{"values", event.Value.Values},
			field{"delivered", event.Value.Delivered},
			field{"outbound", event.Value.Outbound},
		)
	case event.Instance != nil:
		fields = append(fields, field{"action", event.Instance.Action.String()})
		if event.Instance.Origin != "" {
			fields = append(fields, field{"origin", event.Instance.Origin})
		}
		if event.Instance.Victim != nil {
			fields = append(fields, field{"victim", *event.Instance.Victim})
		}
		fields = append(fields, field{"delivered", event.Instance.Delivered})
	case event.StateChange != nil:
		fields = append(fields,
			field{"entity", event.StateChange.Entity.String()},
			field{"old_state", event.StateChange.OldState},
			field{"new_state", event.StateChange.NewState},
		)
		if event.StateChange.Reason != "" {
			fields = append(fields, field{"reason", event.StateChange.Reason})
		}
	case event.Error != nil:
		fields = append(fields, field{"error", event.Error.Message})
		if event.Error.Context != "" {
			fields = append(fields, field{"error_context", event.Error.Context})
		}
	}
	return fields
}
