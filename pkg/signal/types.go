package signal

import (
	"errors"
	"fmt"
)

// Signal errors.
var (
	ErrInvalidSpec       = errors.New("invalid signal spec")
	ErrIllegalValueShape = errors.New("illegal value shape")
)

// Direction is the data flow direction of a signal relative to the device.
type Direction uint8

const (
	// DirectionInput signals receive values from the network.
	DirectionInput Direction = iota
	// DirectionOutput signals publish values to the network.
	DirectionOutput
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// ParseDirection parses "input"/"in" or "output"/"out".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "input", "in":
		return DirectionInput, nil
	case "output", "out":
		return DirectionOutput, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidSpec, s)
}

// Type is the element type of a signal.
type Type uint8

const (
	TypeInt32 Type = iota + 1
	TypeFloat32
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// ParseType parses a type name. The single-letter forms "i" and "f" are
// accepted as well.
func ParseType(s string) (Type, error) {
	switch s {
	case "int32", "int", "i":
		return TypeInt32, nil
	case "float32", "float", "f":
		return TypeFloat32, nil
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, s)
}

// StealPolicy selects which instance is released when an ephemeral signal
// runs out of instance capacity.
type StealPolicy uint8

const (
	// StealNone releases nothing; consumers are told about the overflow.
	StealNone StealPolicy = iota
	// StealOldest releases the instance that was activated first.
	StealOldest
	// StealNewest releases the instance that was activated last.
	StealNewest
)

// String returns the policy name.
func (p StealPolicy) String() string {
	switch p {
	case StealNone:
		return "none"
	case StealOldest:
		return "oldest"
	case StealNewest:
		return "newest"
	default:
		return "unknown"
	}
}

// ParseStealPolicy parses a policy name. The empty string is StealNone.
func ParseStealPolicy(s string) (StealPolicy, error) {
	switch s {
	case "", "none":
		return StealNone, nil
	case "oldest":
		return StealOldest, nil
	case "newest":
		return StealNewest, nil
	}
	return 0, fmt.Errorf("%w: unknown steal policy %q", ErrInvalidSpec, s)
}

// DefaultMaxInstances is the instance capacity of an ephemeral signal whose
// spec leaves MaxInstances at zero.
const DefaultMaxInstances = 1

// Spec describes a signal at creation time. Type and Length are fixed for
// the life of the handle.
type Spec struct {
	Name      string
	Direction Direction
	Type      Type
	Length    int

	// Ephemeral signals may create and retire value-instances dynamically.
	Ephemeral bool

	// Steal is consulted on instance overflow.
	Steal StealPolicy

	// MaxInstances bounds the concurrently active instances of an
	// ephemeral signal. Zero means DefaultMaxInstances.
	MaxInstances int
}

// Validate checks the spec for structural errors and fills defaults.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if s.Direction != DirectionInput && s.Direction != DirectionOutput {
		return fmt.Errorf("%w: direction %d", ErrInvalidSpec, s.Direction)
	}
	if s.Type != TypeInt32 && s.Type != TypeFloat32 {
		return fmt.Errorf("%w: type %d", ErrInvalidSpec, s.Type)
	}
	if s.Length < 1 {
		return fmt.Errorf("%w: length %d", ErrInvalidSpec, s.Length)
	}
	if s.MaxInstances < 0 {
		return fmt.Errorf("%w: max instances %d", ErrInvalidSpec, s.MaxInstances)
	}
	if s.MaxInstances == 0 {
		s.MaxInstances = DefaultMaxInstances
	}
	if s.Steal > StealNewest {
		return fmt.Errorf("%w: steal policy %d", ErrInvalidSpec, s.Steal)
	}
	return nil
}

// Compatible reports whether a bind request with spec o can join a handle
// created with s. Only the element type and vector length must agree.
func (s Spec) Compatible(o Spec) bool {
	return s.Type == o.Type && s.Length == o.Length
}
