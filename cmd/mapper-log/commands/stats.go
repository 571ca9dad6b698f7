package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	InstancesByAction map[log.InstanceAction]int
	Devices           map[string]*DeviceStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device context.
type DeviceStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Signals   map[string]int
}

// CollectStats reads every event of a trace file.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		InstancesByAction: make(map[log.InstanceAction]int),
		Devices:           make(map[string]*DeviceStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		if event.Instance != nil {
			stats.InstancesByAction[event.Instance.Action]++
		}
		if event.Error != nil {
			stats.Errors++
		}

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		dev, ok := stats.Devices[event.DeviceID]
		if !ok {
			dev = &DeviceStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
				Signals:   make(map[string]int),
			}
			stats.Devices[event.DeviceID] = dev
		}
		dev.Events++
		if event.Timestamp.After(dev.LastSeen) {
			dev.LastSeen = event.Timestamp
		}
		if event.Signal != "" {
			dev.Signals[event.Signal]++
		}
	}
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Mapper Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range layers {
		if count := stats.EventsByLayer[l]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", l.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range categories {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}

	if len(stats.InstancesByAction) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Instance Activity:")
		for _, a := range []log.InstanceAction{log.InstanceActivated, log.InstanceReleased, log.InstanceOverflow, log.InstanceStolen} {
			if count := stats.InstancesByAction[a]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", a.String()+":", count)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
	ids := make([]string, 0, len(stats.Devices))
	for id := range stats.Devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Devices[ids[i]].FirstSeen.Before(stats.Devices[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		d := stats.Devices[id]
		fmt.Fprintf(w, "  [%s] %d events, %d signals, duration %s\n",
			shortenID(id), d.Events, len(d.Signals), d.LastSeen.Sub(d.FirstSeen).Round(time.Millisecond))
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
