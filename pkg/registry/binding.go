package registry

import (
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Consumer is a local object that receives values and events for the
// signals it is bound to. Implementations must be comparable (typically a
// pointer type); the registry uses them as map keys.
type Consumer interface {
	// DeliverValue is called with a length-correct vector.
	DeliverValue(h *signal.Handle, slot signal.Slot, v signal.Values)

	// DeliverEvent is called for release and overflow events.
	DeliverEvent(h *signal.Handle, ev signal.Event)
}

// Binding is one consumer's interest in one (signal, slot) pair.
type Binding struct {
	id       xid.ID
	consumer Consumer
	handle   *signal.Handle
	slot     signal.Slot
	live     atomic.Bool
}

func newBinding(c Consumer, h *signal.Handle, slot signal.Slot) *Binding {
	b := &Binding{
		id:       xid.New(),
		consumer: c,
		handle:   h,
		slot:     slot,
	}
	b.live.Store(true)
	return b
}

// ID returns the binding's unique id.
func (b *Binding) ID() string { return b.id.String() }

// Consumer returns the bound consumer.
func (b *Binding) Consumer() Consumer { return b.consumer }

// Handle returns the bound signal.
func (b *Binding) Handle() *signal.Handle { return b.handle }

// Slot returns the bound instance slot.
func (b *Binding) Slot() signal.Slot { return b.slot }

// Live reports whether the binding is still registered. A binding that was
// removed while a dispatch snapshot held it reports false.
func (b *Binding) Live() bool { return b.live.Load() }

func (b *Binding) kill() { b.live.Store(false) }

// BindingSet is the ordered bindings of one (signal, slot) pair.
type BindingSet struct {
	bindings []*Binding
}

// Len returns the number of bindings.
func (s *BindingSet) Len() int { return len(s.bindings) }

func (s *BindingSet) add(b *Binding) {
	s.bindings = append(s.bindings, b)
}

// remove deletes b preserving order and reports whether it was present.
func (s *BindingSet) remove(b *Binding) bool {
	for i, x := range s.bindings {
		if x == b {
			s.bindings = append(s.bindings[:i], s.bindings[i+1:]...)
			return true
		}
	}
	return false
}

func (s *BindingSet) snapshot() []*Binding {
	out := make([]*Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}
