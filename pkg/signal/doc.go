// Package signal defines the value-stream vocabulary shared by the registry,
// the dispatch router and the host adapters.
//
// A signal is a named, typed, fixed-length value stream registered with a
// network layer. Locally it is represented by a [Handle], which carries the
// immutable [Spec] the signal was created with and a small lifecycle state:
//
//	Unbound -> Bound -> Ready -> Bound -> ... -> Destroyed
//
// Destroyed is terminal. Events addressed to a destroyed handle are dropped.
//
// # Instances
//
// Ephemeral signals may carry several concurrent value-instances (one per
// voice or gesture). A [Slot] addresses either the base instance (the zero
// Slot) or one specific [InstanceID].
//
// # Values
//
// Host input arrives as [Atom] lists. [Convert] validates the list shape
// against the signal's vector length and coerces each element to the
// signal's element type: float input truncates toward zero on int32 signals,
// integer input is promoted on float32 signals.
package signal
