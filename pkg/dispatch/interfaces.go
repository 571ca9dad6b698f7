package dispatch

import (
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Network is the protocol layer boundary. Implementations must not block;
// readiness is polled.
type Network interface {
	// PollOnce performs at most one unit of protocol work and reports
	// whether any work was done. Callbacks into the attached Sink happen
	// synchronously from PollOnce.
	PollOnce() bool

	// SetValue queues an outbound value under the batch timestamp ts.
	SetValue(h *signal.Handle, slot signal.Slot, v signal.Values, ts time.Time)

	// ReleaseInstance queues an instance release under ts.
	ReleaseInstance(h *signal.Handle, id signal.InstanceID, ts time.Time)

	// SendBatch transmits everything queued under ts as one transaction.
	SendBatch(ts time.Time)
}

// Sink receives network callbacks. Router implements Sink.
type Sink interface {
	OnValueUpdate(h *signal.Handle, slot signal.Slot, v signal.Values)
	OnValueRelease(h *signal.Handle, id signal.InstanceID, origin signal.Origin)
	OnInstanceOverflow(h *signal.Handle, id signal.InstanceID)

	// OnReady reports that the network has confirmed registration of h.
	OnReady(h *signal.Handle)

	// OnReset reports that every registration was lost.
	OnReset()
}

// Attacher is implemented by networks that deliver callbacks to a Sink.
type Attacher interface {
	Attach(s Sink)
}

// Registrar is implemented by networks that need to learn about handles as
// they are created and released.
type Registrar interface {
	Register(h *signal.Handle)
	Unregister(h *signal.Handle)
}
