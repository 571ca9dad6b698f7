package signal

import "strconv"

// InstanceID identifies one value-instance of an ephemeral signal.
type InstanceID uint64

// Slot addresses either the base instance of a signal (the zero Slot) or one
// specific instance. Slots are comparable and usable as map keys.
type Slot struct {
	id  InstanceID
	set bool
}

// Base returns the slot of the base instance.
func Base() Slot { return Slot{} }

// Instance returns the slot of instance id.
func Instance(id InstanceID) Slot { return Slot{id: id, set: true} }

// ID returns the instance id and whether the slot names one.
func (s Slot) ID() (InstanceID, bool) { return s.id, s.set }

// IsBase reports whether s addresses the base instance.
func (s Slot) IsBase() bool { return !s.set }

// String returns "base" or the instance id.
func (s Slot) String() string {
	if !s.set {
		return "base"
	}
	return strconv.FormatUint(uint64(s.id), 10)
}
