package signal

// EventKind classifies a non-value event delivered to consumers.
type EventKind uint8

const (
	// EventRelease reports that an instance was released.
	EventRelease EventKind = iota + 1
	// EventOverflow reports that a new instance could not be allocated.
	EventOverflow
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventRelease:
		return "release"
	case EventOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Origin tags where a release came from.
type Origin uint8

const (
	OriginUpstream Origin = iota
	OriginDownstream
	OriginLocal
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginUpstream:
		return "upstream"
	case OriginDownstream:
		return "downstream"
	case OriginLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Event is a structured release or overflow notification.
type Event struct {
	Kind EventKind

	// Slot is the released instance for EventRelease and the instance that
	// could not be allocated for EventOverflow.
	Slot Slot

	// Origin is only meaningful for EventRelease.
	Origin Origin
}
