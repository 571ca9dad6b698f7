// Package network provides in-process implementations of the device's
// network boundary.
//
// Loopback satisfies dispatch.Network, dispatch.Attacher and
// dispatch.Registrar. Inbound traffic is queued with the Inject methods
// and drained one event per PollOnce. Outbound values and releases are
// collected into the current batch and recorded when SendBatch closes it.
// Route connects an output signal to an input signal so that every sent
// batch is fed back in as inbound traffic on the next poll.
//
// Batches can be mirrored to any io.Writer as length-prefixed CBOR frames
// (see BatchWriter and BatchReader).
package network
