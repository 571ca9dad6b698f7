// Package log provides structured event logging for signal bindings.
//
// Registries, routers and lifecycle trackers report what they do as [Event]
// values: bindings created and removed, values fanned out, instances
// activated, released or stolen, handle state changes and errors. This is
// separate from operational logging; the event trace is machine-readable and
// meant for debugging fan-out order and teardown races after the fact.
//
// # Basic Usage
//
//	// Console output during development
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary trace file
//	fl, _ := log.NewFileLogger("/tmp/device.elog")
//	cfg.EventLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys. Use
// [NewReader] or [NewFilteredReader] to iterate them.
package log
