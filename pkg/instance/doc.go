// Package instance tracks the active value-instances of ephemeral signals
// and decides which instance to steal when a signal runs out of capacity.
//
// [ChooseVictim] is a pure function over a snapshot of the active set; it
// never mutates. The caller releases the victim from the [Table] and issues
// the release on the network itself.
package instance
