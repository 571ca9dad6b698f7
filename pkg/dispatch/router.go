package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/instance"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Stats counts router activity.
type Stats struct {
	// Delivered is the number of consumer deliveries (values and events).
	Delivered uint64

	// Dropped is the number of events discarded because their handle was
	// destroyed or unregistered.
	Dropped uint64

	// Stolen is the number of instances released by a steal policy.
	Stolen uint64

	// Overflows is the number of overflow broadcasts.
	Overflows uint64
}

// Router fans network events out to bound consumers.
type Router struct {
	registry *registry.Registry
	network  Network

	mu      sync.Mutex
	tables  map[*signal.Handle]*instance.Table
	now     func() time.Time
	onReady func(*signal.Handle)

	logger   log.Logger
	deviceID string

	delivered atomic.Uint64
	dropped   atomic.Uint64
	stolen    atomic.Uint64
	overflows atomic.Uint64
}

var _ Sink = (*Router)(nil)

// NewRouter creates a router over reg. The network is used to release
// stolen instances. With a nil network a stolen instance's release is
// delivered to its consumers directly.
func NewRouter(reg *registry.Registry, network Network) *Router {
	return &Router{
		registry: reg,
		network:  network,
		tables:   make(map[*signal.Handle]*instance.Table),
		now:      time.Now,
		logger:   log.NoopLogger{},
	}
}

// SetClock replaces the time source used for instance activation and
// release timestamps.
func (r *Router) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetLogger sets the event logger and device id.
func (r *Router) SetLogger(logger log.Logger, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = log.OrNoop(logger)
	r.deviceID = deviceID
}

// OnReadyChange sets the callback invoked after a handle becomes ready.
func (r *Router) OnReadyChange(fn func(*signal.Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReady = fn
}

// Stats returns a snapshot of the counters.
func (r *Router) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
		Stolen:    r.stolen.Load(),
		Overflows: r.overflows.Load(),
	}
}

// Instances returns the active-instance table of an ephemeral handle,
// creating it on first use. Non-ephemeral and destroyed handles have none.
func (r *Router) Instances(h *signal.Handle) *instance.Table {
	if !h.Ephemeral() || h.State() == signal.StateDestroyed {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[h]
	if !ok {
		t = instance.NewTable(h.MaxInstances())
		r.tables[h] = t
	}
	return t
}

// Forget drops per-handle state. It is wired to the registry's release
// callback.
func (r *Router) Forget(h *signal.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, h)
}

func (r *Router) env() (func() time.Time, log.Logger, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now, r.logger, r.deviceID
}

// OnValueUpdate delivers v to the consumers bound at slot.
func (r *Router) OnValueUpdate(h *signal.Handle, slot signal.Slot, v signal.Values) {
	now, logger, deviceID := r.env()
	if !h.Live() {
		r.dropped.Add(1)
		return
	}
	if !h.Ephemeral() {
		slot = signal.Base()
	} else if id, ok := slot.ID(); ok {
		t := r.Instances(h)
		created, err := t.Activate(id, now())
		if errors.Is(err, instance.ErrCapacity) {
			if !r.Overflow(h, id) {
				return
			}
			created, err = t.Activate(id, now())
		}
		if err != nil {
			r.dropped.Add(1)
			return
		}
		if created {
			logger.Log(r.instanceEvent(deviceID, now(), h, slot, &log.InstanceEvent{Action: log.InstanceActivated}))
		}
	}

	bindings, err := r.target(h, slot)
	if err != nil {
		r.dropped.Add(1)
		return
	}

	n := 0
	for _, b := range bindings {
		if !b.Live() {
			continue
		}
		b.Consumer().DeliverValue(h, slot, v)
		n++
	}
	r.delivered.Add(uint64(n))

	logger.Log(log.Event{
		Timestamp: now(),
		DeviceID:  deviceID,
		Layer:     log.LayerRouter,
		Category:  log.CategoryValue,
		Signal:    h.Name(),
		Direction: h.Direction().String(),
		Slot:      slot.String(),
		Value:     &log.ValueEvent{Values: v.Float64s(), Delivered: n},
	})
}

// OnValueRelease delivers a release event for instance id. The binding set
// is not pruned; the id may be reused. Local releases were already removed
// from the instance table by whoever initiated them, so only upstream and
// downstream releases free the slot here.
func (r *Router) OnValueRelease(h *signal.Handle, id signal.InstanceID, origin signal.Origin) {
	now, logger, deviceID := r.env()
	if !h.Live() {
		r.dropped.Add(1)
		return
	}
	if t := r.Instances(h); t != nil && origin != signal.OriginLocal {
		t.Release(id)
	}

	slot := signal.Instance(id)
	bindings, err := r.target(h, slot)
	if err != nil {
		r.dropped.Add(1)
		return
	}

	ev := signal.Event{Kind: signal.EventRelease, Slot: slot, Origin: origin}
	n := r.deliverEvent(h, bindings, ev)

	logger.Log(r.instanceEvent(deviceID, now(), h, slot, &log.InstanceEvent{
		Action:    log.InstanceReleased,
		Origin:    origin.String(),
		Delivered: n,
	}))
}

// OnInstanceOverflow resolves an overflow for the requested instance id.
func (r *Router) OnInstanceOverflow(h *signal.Handle, id signal.InstanceID) {
	r.Overflow(h, id)
}

// Overflow resolves an overflow for the requested instance id by stealing
// according to the signal's policy, or by broadcasting an overflow event to
// the base set when nothing can be stolen. A stolen instance leaves the
// table at once and is released on the network; its consumers hear about
// it when that release comes back as OnValueRelease. It reports whether a
// slot was freed.
func (r *Router) Overflow(h *signal.Handle, id signal.InstanceID) bool {
	now, logger, deviceID := r.env()
	if !h.Live() {
		r.dropped.Add(1)
		return false
	}
	slot := signal.Instance(id)

	t := r.Instances(h)
	var active []instance.Entry
	if t != nil {
		active = t.Entries()
	}
	if victim, ok := instance.ChooseVictim(active, h.StealPolicy()); ok {
		t.Release(victim)
		r.stolen.Add(1)
		v := uint64(victim)
		logger.Log(r.instanceEvent(deviceID, now(), h, slot, &log.InstanceEvent{
			Action: log.InstanceStolen,
			Victim: &v,
		}))
		if r.network != nil {
			r.network.ReleaseInstance(h, victim, now())
		} else {
			// Nothing will report the release back.
			r.OnValueRelease(h, victim, signal.OriginLocal)
		}
		return true
	}

	bindings, err := r.registry.Snapshot(h, signal.Base())
	if err != nil {
		r.dropped.Add(1)
		return false
	}
	n := r.deliverEvent(h, bindings, signal.Event{Kind: signal.EventOverflow, Slot: slot})
	r.overflows.Add(1)

	logger.Log(r.instanceEvent(deviceID, now(), h, slot, &log.InstanceEvent{
		Action:    log.InstanceOverflow,
		Delivered: n,
	}))
	return false
}

// OnReady moves h from Bound to Ready.
func (r *Router) OnReady(h *signal.Handle) {
	if !h.Transition(signal.StateBound, signal.StateReady) {
		return
	}
	now, logger, deviceID := r.env()
	logger.Log(stateEvent(deviceID, now(), h, signal.StateBound, signal.StateReady, "network ready"))

	r.mu.Lock()
	fn := r.onReady
	r.mu.Unlock()
	if fn != nil {
		fn(h)
	}
}

// OnReset moves every ready handle back to Bound.
func (r *Router) OnReset() {
	now, logger, deviceID := r.env()
	for _, h := range r.registry.Handles() {
		if h.Transition(signal.StateReady, signal.StateBound) {
			logger.Log(stateEvent(deviceID, now(), h, signal.StateReady, signal.StateBound, "network reset"))
		}
	}
}

// target returns the snapshot for an instance-aware delivery: the exact
// slot when bound, otherwise the base set.
func (r *Router) target(h *signal.Handle, slot signal.Slot) ([]*registry.Binding, error) {
	if !slot.IsBase() && h.Ephemeral() && r.registry.HasSlot(h, slot) {
		return r.registry.Snapshot(h, slot)
	}
	return r.registry.Snapshot(h, signal.Base())
}

func (r *Router) deliverEvent(h *signal.Handle, bindings []*registry.Binding, ev signal.Event) int {
	n := 0
	for _, b := range bindings {
		if !b.Live() {
			continue
		}
		b.Consumer().DeliverEvent(h, ev)
		n++
	}
	r.delivered.Add(uint64(n))
	return n
}

func (r *Router) instanceEvent(deviceID string, now time.Time, h *signal.Handle, slot signal.Slot, ie *log.InstanceEvent) log.Event {
	return log.Event{
		Timestamp: now,
		DeviceID:  deviceID,
		Layer:     log.LayerRouter,
		Category:  log.CategoryInstance,
		Signal:    h.Name(),
		Direction: h.Direction().String(),
		Slot:      slot.String(),
		Instance:  ie,
	}
}

func stateEvent(deviceID string, now time.Time, h *signal.Handle, from, to signal.State, reason string) log.Event {
	return log.Event{
		Timestamp: now,
		DeviceID:  deviceID,
		Layer:     log.LayerRouter,
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
