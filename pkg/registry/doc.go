// Package registry maps signals to the local consumers bound to them.
//
// A [Registry] is the single source of truth for one device context. It
// maps (name, direction) to a [signal.Handle], and (handle, slot) to an
// ordered [BindingSet]. Insertion order is dispatch order.
//
// # Lifecycle
//
// The first Bind for an unknown (name, direction) creates the handle; its
// element type and vector length are then fixed. When the last binding of a
// handle is removed the handle is destroyed and released, and the release
// callback fires. Empty binding sets are pruned eagerly.
//
// # Snapshots
//
// Dispatch never iterates a live binding set. [Registry.Snapshot] copies the
// set under the read lock; removed bindings are marked dead, so a snapshot
// taken before an unbind skips them without further locking.
package registry
