package log

import (
	"time"
)

// Event is one binding, dispatch or lifecycle occurrence.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// DeviceID identifies the device context (UUID).
	DeviceID string `cbor:"2,keyasint"`

	// Layer that emitted the event.
	Layer Layer `cbor:"3,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// Signal is the signal name, if the event concerns one.
	Signal string `cbor:"5,keyasint,omitempty"`

	// Direction is "input" or "output" when Signal is set.
	Direction string `cbor:"6,keyasint,omitempty"`

	// Slot is the instance slot ("base" or an id) when relevant.
	Slot string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Binding     *BindingEvent     `cbor:"10,keyasint,omitempty"`
	Value       *ValueEvent       `cbor:"11,keyasint,omitempty"`
	Instance    *InstanceEvent    `cbor:"12,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Layer indicates which component emitted the event.
type Layer uint8

const (
	LayerRegistry Layer = iota
	LayerRouter
	LayerLifecycle
	LayerNetwork
	LayerHost
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerRegistry:
		return "REGISTRY"
	case LayerRouter:
		return "ROUTER"
	case LayerLifecycle:
		return "LIFECYCLE"
	case LayerNetwork:
		return "NETWORK"
	case LayerHost:
		return "HOST"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryBinding Category = iota
	CategoryValue
	CategoryInstance
	CategoryState
	CategoryError
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryBinding:
		return "BINDING"
	case CategoryValue:
		return "VALUE"
	case CategoryInstance:
		return "INSTANCE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// BindingAction is what happened to a binding.
type BindingAction uint8

const (
	BindingAdded BindingAction = iota
	BindingRemoved
	BindingMoved
)

// String returns the action name.
func (a BindingAction) String() string {
	switch a {
	case BindingAdded:
		return "ADDED"
	case BindingRemoved:
		return "REMOVED"
	case BindingMoved:
		return "MOVED"
	default:
		return "UNKNOWN"
	}
}

// BindingEvent captures a registry mutation.
type BindingEvent struct {
	Action BindingAction `cbor:"1,keyasint"`

	// BindingID is the xid of the binding.
	BindingID string `cbor:"2,keyasint"`

	// Remaining is the number of live bindings left on the signal.
	Remaining int `cbor:"3,keyasint"`

	// FromSlot is set for BindingMoved.
	FromSlot string `cbor:"4,keyasint,omitempty"`
}

// ValueEvent captures one fan-out of a value update.
type ValueEvent struct {
	// Values as delivered, widened to float64.
	Values []float64 `cbor:"1,keyasint"`

	// Delivered is the number of consumers that received the value.
	Delivered int `cbor:"2,keyasint"`

	// Outbound is true for values sent to the network.
	Outbound bool `cbor:"3,keyasint,omitempty"`
}

// InstanceAction is what happened to an instance.
type InstanceAction uint8

const (
	InstanceActivated InstanceAction = iota
	InstanceReleased
	InstanceOverflow
	InstanceStolen
)

// String returns the action name.
func (a InstanceAction) String() string {
	switch a {
	case InstanceActivated:
		return "ACTIVATED"
	case InstanceReleased:
		return "RELEASED"
	case InstanceOverflow:
		return "OVERFLOW"
	case InstanceStolen:
		return "STOLEN"
	default:
		return "UNKNOWN"
	}
}

// InstanceEvent captures instance allocation activity.
type InstanceEvent struct {
	Action InstanceAction `cbor:"1,keyasint"`

	// Origin of a release ("upstream", "downstream", "local").
	Origin string `cbor:"2,keyasint,omitempty"`

	// Victim is the stolen instance for InstanceStolen.
	Victim *uint64 `cbor:"3,keyasint,omitempty"`

	// Delivered is the number of consumers notified.
	Delivered int `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures signal and context lifecycle transitions.
type StateChangeEvent struct {
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntitySignal StateEntity = iota
	StateEntityContext
	StateEntityConsumer
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySignal:
		return "SIGNAL"
	case StateEntityContext:
		return "CONTEXT"
	case StateEntityConsumer:
		return "CONSUMER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
