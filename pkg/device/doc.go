// Package device is the runtime of one device context.
//
// A [Device] owns a [registry.Registry] and a [dispatch.Router] and drives a
// [dispatch.Network] on a cooperative tick:
//
//  1. poll the network up to PollBudget times, stopping early when a poll
//     does no work; network callbacks dispatch synchronously from the poll
//  2. close the current outbound batch, if one is open, and send it
//
// # Outbound batching
//
// The first SetValue or ReleaseInstance within a tick opens a batch stamped
// with the current time. Later calls in the same tick join it. The tick
// sends the batch exactly once, however many updates it holds.
//
// # Locking
//
// Ticks are serialized by their own mutex. The batch has a separate mutex
// that is never held across a network call, so consumers may call SetValue
// from inside a dispatch callback.
//
// # Observers
//
// After every bind or unbind that changed something, and after a signal
// becomes ready, the device reports its counts to registered observers.
// [Device.Dump] returns the full property dump on demand.
package device
