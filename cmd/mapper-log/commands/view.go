package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/libmapper/libmapper-max-sub000/pkg/log"
)

// RunView writes every event matching filter in human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes one event: a header line and an indented detail line.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [dev:%s] %s %s", ts, shortenID(event.DeviceID), event.Layer, eventType(event))
	if event.Signal != "" {
		fmt.Fprintf(w, " %s/%s", event.Direction, event.Signal)
	}
	if event.Slot != "" {
		fmt.Fprintf(w, " [%s]", event.Slot)
	}
	fmt.Fprintln(w)

	switch {
	case event.Binding != nil:
		b := event.Binding
		fmt.Fprintf(w, "  binding %s, %d remaining", b.BindingID, b.Remaining)
		if b.FromSlot != "" {
			fmt.Fprintf(w, ", from %s", b.FromSlot)
		}
		fmt.Fprintln(w)
	case event.Value != nil:
		v := event.Value
		dir := "delivered to"
		if v.Outbound {
			dir = "sent, delivered to"
		}
		fmt.Fprintf(w, "  %s %s %d\n", formatValues(v.Values), dir, v.Delivered)
	case event.Instance != nil:
		in := event.Instance
		var parts []string
		if in.Origin != "" {
			parts = append(parts, "origin "+in.Origin)
		}
		if in.Victim != nil {
			parts = append(parts, fmt.Sprintf("victim %d", *in.Victim))
		}
		parts = append(parts, fmt.Sprintf("delivered %d", in.Delivered))
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, ", "))
	case event.StateChange != nil:
		sc := event.StateChange
		from := sc.OldState
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(w, "  %s %s -> %s", sc.Entity, from, sc.NewState)
		if sc.Reason != "" {
			fmt.Fprintf(w, " (%s)", sc.Reason)
		}
		fmt.Fprintln(w)
	case event.Error != nil:
		fmt.Fprintf(w, "  %s", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, " [%s]", event.Error.Context)
		}
		fmt.Fprintln(w)
	}
}

// eventType labels an event by its payload.
func eventType(event log.Event) string {
	switch {
	case event.Binding != nil:
		return "Binding " + event.Binding.Action.String()
	case event.Value != nil:
		return "Value"
	case event.Instance != nil:
		return "Instance " + event.Instance.Action.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func formatValues(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// shortenID returns the first 8 characters of an id.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
