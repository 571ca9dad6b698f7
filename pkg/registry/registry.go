package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Registry errors.
var (
	ErrNotFound           = errors.New("signal not found")
	ErrSignalTypeConflict = errors.New("signal type conflict")
	ErrBindingNotFound    = errors.New("binding not found")
	ErrNilConsumer        = errors.New("nil consumer")
	ErrClosed             = errors.New("registry closed")
)

// key identifies a handle. An input and an output may share a name.
type key struct {
	name string
	dir  signal.Direction
}

func keyOf(h *signal.Handle) key {
	return key{name: h.Name(), dir: h.Direction()}
}

type entry struct {
	handle *signal.Handle
	sets   map[signal.Slot]*BindingSet
	live   int
}

// BindResult describes a successful Bind.
type BindResult struct {
	Handle  *signal.Handle
	Binding *Binding

	// Created is true if this call created the handle.
	Created bool

	// Signals is the number of signals in the bound direction after the
	// call (numInputs or numOutputs).
	Signals int

	// Consumers is the number of distinct consumers bound to signals in the
	// bound direction after the call.
	Consumers int
}

// Counts is the observable per-direction summary of a registry.
type Counts struct {
	Inputs          int
	Outputs         int
	InputConsumers  int
	OutputConsumers int
}

// Registry maps signals to bindings for one device context.
// It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	entries    map[key]*entry
	byConsumer map[Consumer][]*Binding
	closed     bool

	onRelease func(*signal.Handle)

	logger   log.Logger
	deviceID string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:    make(map[key]*entry),
		byConsumer: make(map[Consumer][]*Binding),
		logger:     log.NoopLogger{},
	}
}

// SetLogger sets the event logger and the device id stamped on events.
func (r *Registry) SetLogger(logger log.Logger, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = log.OrNoop(logger)
	r.deviceID = deviceID
}

// OnRelease sets the callback invoked, outside the registry lock, after a
// handle has been destroyed because its last binding went away or the
// registry was closed.
func (r *Registry) OnRelease(fn func(*signal.Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRelease = fn
}

// Bind appends a binding for c to the (signal, slot) set, creating the
// signal if needed. Binding an existing signal with a different element
// type or vector length fails with ErrSignalTypeConflict and leaves the
// existing handle untouched; the conflicting result still carries it.
//
// Other spec fields (ephemeral, steal policy, capacity) are taken from the
// first Bind and ignored afterwards.
func (r *Registry) Bind(spec signal.Spec, c Consumer, slot signal.Slot) (BindResult, error) {
	if c == nil {
		return BindResult{}, ErrNilConsumer
	}
	if err := spec.Validate(); err != nil {
		return BindResult{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return BindResult{}, ErrClosed
	}

	k := key{name: spec.Name, dir: spec.Direction}
	e, exists := r.entries[k]
	if exists && !e.handle.Spec().Compatible(spec) {
		have := e.handle.Spec()
		h := e.handle
		logger, deviceID := r.logger, r.deviceID
		r.mu.Unlock()

		err := fmt.Errorf("%w: %s is %s[%d], requested %s[%d]",
			ErrSignalTypeConflict, h, have.Type, have.Length, spec.Type, spec.Length)
		logger.Log(log.Event{
			Timestamp: time.Now(),
			DeviceID:  deviceID,
			Layer:     log.LayerRegistry,
			Category:  log.CategoryError,
			Signal:    h.Name(),
			Direction: h.Direction().String(),
			Error:     &log.ErrorEventData{Message: err.Error(), Context: "bind"},
		})
		return BindResult{Handle: h}, err
	}

	created := false
	if !exists {
		h, err := signal.NewHandle(spec)
		if err != nil {
			r.mu.Unlock()
			return BindResult{}, err
		}
		e = &entry{handle: h, sets: make(map[signal.Slot]*BindingSet)}
		r.entries[k] = e
		created = true
	}

	b := newBinding(c, e.handle, slot)
	set := e.sets[slot]
	if set == nil {
		set = &BindingSet{}
		e.sets[slot] = set
	}
	set.add(b)
	e.live++
	r.byConsumer[c] = append(r.byConsumer[c], b)

	if created {
		e.handle.Transition(signal.StateUnbound, signal.StateBound)
	}

	result := BindResult{
		Handle:    e.handle,
		Binding:   b,
		Created:   created,
		Signals:   r.countSignalsLocked(spec.Direction),
		Consumers: r.countConsumersLocked(spec.Direction),
	}
	remaining := e.live
	logger, deviceID := r.logger, r.deviceID
	r.mu.Unlock()

	now := time.Now()
	if created {
		logger.Log(stateEvent(deviceID, now, e.handle, signal.StateUnbound, signal.StateBound, "first binding"))
	}
	logger.Log(bindingEvent(deviceID, now, b, log.BindingAdded, remaining, ""))

	return result, nil
}

// Unbind removes every binding owned by c, or only those for the given
// signal names. It returns the number of bindings removed; unbinding an
// unknown consumer removes nothing and is not an error.
func (r *Registry) Unbind(c Consumer, names ...string) int {
	r.mu.Lock()

	bindings := r.byConsumer[c]
	if len(bindings) == 0 {
		r.mu.Unlock()
		return 0
	}

	var keep, removed []*Binding
	for _, b := range bindings {
		if matchesName(b, names) {
			removed = append(removed, b)
		} else {
			keep = append(keep, b)
		}
	}
	if len(keep) == 0 {
		delete(r.byConsumer, c)
	} else {
		r.byConsumer[c] = keep
	}

	type removal struct {
		b         *Binding
		remaining int
	}
	var done []removal
	var released []*signal.Handle

	for _, b := range removed {
		b.kill()
		k := keyOf(b.handle)
		e := r.entries[k]
		if e == nil || e.handle != b.handle {
			continue
		}
		if set := e.sets[b.slot]; set != nil {
			set.remove(b)
			if set.Len() == 0 {
				delete(e.sets, b.slot)
			}
		}
		e.live--
		done = append(done, removal{b: b, remaining: e.live})
		if e.live == 0 {
			delete(r.entries, k)
			released = append(released, e.handle)
		}
	}

	logger, deviceID, onRelease := r.logger, r.deviceID, r.onRelease
	r.mu.Unlock()

	now := time.Now()
	for _, d := range done {
		logger.Log(bindingEvent(deviceID, now, d.b, log.BindingRemoved, d.remaining, ""))
	}
	r.release(released, logger, deviceID, onRelease, "last binding removed")

	return len(removed)
}

func matchesName(b *Binding, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if b.handle.Name() == n {
			return true
		}
	}
	return false
}

// release destroys handles and fires the release callback. Must be called
// without the lock held.
func (r *Registry) release(handles []*signal.Handle, logger log.Logger, deviceID string, onRelease func(*signal.Handle), reason string) {
	now := time.Now()
	for _, h := range handles {
		prev := h.Destroy()
		if prev == signal.StateDestroyed {
			continue
		}
		logger.Log(stateEvent(deviceID, now, h, prev, signal.StateDestroyed, reason))
		if onRelease != nil {
			onRelease(h)
		}
	}
}

// RebindInstance moves every binding c holds at slot from to slot to.
// Moved bindings are appended to the destination set and get new ids; the
// old bindings are marked dead. It fails with ErrBindingNotFound if c holds
// no binding at from.
func (r *Registry) RebindInstance(c Consumer, from, to signal.Slot) error {
	r.mu.Lock()

	bindings := r.byConsumer[c]
	type move struct {
		b         *Binding
		remaining int
	}
	var moves []move
	found := false

	for i, b := range bindings {
		if b.slot != from {
			continue
		}
		found = true
		if from == to {
			continue
		}
		e := r.entries[keyOf(b.handle)]
		if e == nil || e.handle != b.handle {
			continue
		}
		if set := e.sets[from]; set != nil {
			set.remove(b)
			if set.Len() == 0 {
				delete(e.sets, from)
			}
		}
		b.kill()

		nb := newBinding(c, b.handle, to)
		set := e.sets[to]
		if set == nil {
			set = &BindingSet{}
			e.sets[to] = set
		}
		set.add(nb)
		bindings[i] = nb
		moves = append(moves, move{b: nb, remaining: e.live})
	}

	logger, deviceID := r.logger, r.deviceID
	r.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: no binding at slot %s", ErrBindingNotFound, from)
	}

	now := time.Now()
	for _, m := range moves {
		logger.Log(bindingEvent(deviceID, now, m.b, log.BindingMoved, m.remaining, from.String()))
	}
	return nil
}

// Find returns the handle for (name, dir), or ErrNotFound.
func (r *Registry) Find(name string, dir signal.Direction) (*signal.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key{name: name, dir: dir}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, name, dir)
	}
	return e.handle, nil
}

// FindAny returns every handle named name, inputs first.
func (r *Registry) FindAny(name string) []*signal.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*signal.Handle
	for _, dir := range []signal.Direction{signal.DirectionInput, signal.DirectionOutput} {
		if e, ok := r.entries[key{name: name, dir: dir}]; ok {
			out = append(out, e.handle)
		}
	}
	return out
}

// Snapshot returns a copy of the binding set for (h, slot) in dispatch
// order. A registered handle with no set at slot yields an empty snapshot.
// A handle that is not (or no longer) registered yields ErrNotFound.
func (r *Registry) Snapshot(h *signal.Handle, slot signal.Slot) ([]*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[keyOf(h)]
	if !ok || e.handle != h {
		return nil, ErrNotFound
	}
	set := e.sets[slot]
	if set == nil {
		return nil, nil
	}
	return set.snapshot(), nil
}

// HasSlot reports whether h currently has bindings at slot.
func (r *Registry) HasSlot(h *signal.Handle, slot signal.Slot) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[keyOf(h)]
	if !ok || e.handle != h {
		return false
	}
	_, ok = e.sets[slot]
	return ok
}

// Bindings returns every binding of h: the base set first, then instance
// sets by ascending instance id, each in insertion order.
func (r *Registry) Bindings(h *signal.Handle) ([]*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[keyOf(h)]
	if !ok || e.handle != h {
		return nil, ErrNotFound
	}

	slots := make([]signal.Slot, 0, len(e.sets))
	for s := range e.sets {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slotLess(slots[i], slots[j]) })

	var out []*Binding
	for _, s := range slots {
		out = append(out, e.sets[s].bindings...)
	}
	return out, nil
}

func slotLess(a, b signal.Slot) bool {
	if a.IsBase() != b.IsBase() {
		return a.IsBase()
	}
	ai, _ := a.ID()
	bi, _ := b.ID()
	return ai < bi
}

// LiveCount returns the number of bindings of h, or zero if h is not
// registered.
func (r *Registry) LiveCount(h *signal.Handle) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[keyOf(h)]
	if !ok || e.handle != h {
		return 0
	}
	return e.live
}

// ConsumerBindings returns the bindings held by c in bind order.
func (r *Registry) ConsumerBindings(c Consumer) []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bs := r.byConsumer[c]
	out := make([]*Binding, len(bs))
	copy(out, bs)
	return out
}

// Handles returns every registered handle, inputs before outputs, each
// group sorted by name.
func (r *Registry) Handles() []*signal.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*signal.Handle, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.handle)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Direction() != out[j].Direction() {
			return out[i].Direction() < out[j].Direction()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Counts returns the per-direction signal and consumer counts.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Counts{
		Inputs:          r.countSignalsLocked(signal.DirectionInput),
		Outputs:         r.countSignalsLocked(signal.DirectionOutput),
		InputConsumers:  r.countConsumersLocked(signal.DirectionInput),
		OutputConsumers: r.countConsumersLocked(signal.DirectionOutput),
	}
}

func (r *Registry) countSignalsLocked(dir signal.Direction) int {
	n := 0
	for k := range r.entries {
		if k.dir == dir {
			n++
		}
	}
	return n
}

func (r *Registry) countConsumersLocked(dir signal.Direction) int {
	n := 0
	for _, bs := range r.byConsumer {
		for _, b := range bs {
			if b.handle.Direction() == dir {
				n++
				break
			}
		}
	}
	return n
}

// Close removes every binding and destroys every handle. Further Binds
// fail with ErrClosed. Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	handles := make([]*signal.Handle, 0, len(r.entries))
	for _, e := range r.entries {
		for _, set := range e.sets {
			for _, b := range set.bindings {
				b.kill()
			}
		}
		handles = append(handles, e.handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Seq() < handles[j].Seq() })

	r.entries = make(map[key]*entry)
	r.byConsumer = make(map[Consumer][]*Binding)
	logger, deviceID, onRelease := r.logger, r.deviceID, r.onRelease
	r.mu.Unlock()

	r.release(handles, logger, deviceID, onRelease, "registry closed")
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func bindingEvent(deviceID string, now time.Time, b *Binding, action log.BindingAction, remaining int, from string) log.Event {
	return log.Event{
		Timestamp: now,
		DeviceID:  deviceID,
		Layer:     log.LayerRegistry,
		Category:  log.CategoryBinding,
		Signal:    b.handle.Name(),
		Direction: b.handle.Direction().String(),
		Slot:      b.slot.String(),
		Binding: &log.BindingEvent{
			Action:    action,
			BindingID: b.ID(),
			Remaining: remaining,
			FromSlot:  from,
		},
	}
}

func stateEvent(deviceID string, now time.Time, h *signal.Handle, from, to signal.State, reason string) log.Event {
	return log.Event{
		Timestamp: now,
		DeviceID:  deviceID,
		Layer:     log.LayerRegistry,
		Category:  log.CategoryState,
		Signal:    h.Name(),
		Direction: h.Direction().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySignal,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	}
}
