// Package lifecycle ties device contexts to the host's containment tree.
//
// A Tracker allows at most one device context on any root-to-leaf path of
// containers. Each Context owns one device.Device and the set of consumers
// attached to it. Consumers must be attached before they bind, and
// detaching a consumer unbinds everything it holds, so no binding survives
// its consumer.
//
// Attach and detach can be requested from host callbacks with Enqueue;
// queued intents are applied in order by Apply, which the context runs at
// the start of every device tick. Apply is not reentrant.
//
// Teardown detaches every remaining consumer before the device releases
// its signal handles, then marks the context destroyed.
package lifecycle
