package signal

import (
	"sync/atomic"
)

// State is the lifecycle state of a Handle.
type State uint32

const (
	// StateUnbound means the handle exists but has no bindings yet.
	StateUnbound State = iota
	// StateBound means at least one consumer is bound and the network has
	// not confirmed registration.
	StateBound
	// StateReady means the network has confirmed registration.
	StateReady
	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "UNBOUND"
	case StateBound:
		return "BOUND"
	case StateReady:
		return "READY"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

var handleSeq atomic.Uint64

// Handle is the local reference to one network signal. A Handle is created
// by the registry and owned by the registry entry that created it.
type Handle struct {
	spec  Spec
	seq   uint64
	state atomic.Uint32
}

// NewHandle validates spec and returns an unbound handle.
func NewHandle(spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Handle{spec: spec, seq: handleSeq.Add(1)}, nil
}

// Spec returns a copy of the creation spec.
func (h *Handle) Spec() Spec { return h.spec }

// Name returns the signal name.
func (h *Handle) Name() string {
	return h.spec.Name
}

func (h *Handle) Direction() Direction {
	return h.spec.Direction
}

func (h *Handle) Type() Type {
	return h.spec.Type
}

// Length returns the vector length.
func (h *Handle) Length() int {
	return h.spec.Length
}

func (h *Handle) Ephemeral() bool {
	return h.spec.Ephemeral
}

func (h *Handle) StealPolicy() StealPolicy {
	return h.spec.Steal
}

func (h *Handle) MaxInstances() int {
	return h.spec.MaxInstances
}

// Seq returns a process-unique sequence number. Two handles created for the
// same name at different times have different sequence numbers.
func (h *Handle) Seq() uint64 { return h.seq }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Transition moves the handle from one state to another. It returns false
// if the handle was not in from.
func (h *Handle) Transition(from, to State) bool {
	return h.state.CompareAndSwap(uint32(from), uint32(to))
}

// Destroy moves the handle to StateDestroyed from any state. It returns the
// previous state.
func (h *Handle) Destroy() State {
	return State(h.state.Swap(uint32(StateDestroyed)))
}

// Live reports whether events may still be delivered for the handle.
func (h *Handle) Live() bool {
	s := h.State()
	return s == StateBound || s == StateReady
}

// String returns "name/direction".
func (h *Handle) String() string {
	return h.spec.Name + "/" + h.spec.Direction.String()
}
