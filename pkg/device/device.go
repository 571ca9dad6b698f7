package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/libmapper/libmapper-max-sub000/pkg/dispatch"
	"github.com/libmapper/libmapper-max-sub000/pkg/instance"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Device errors.
var (
	ErrClosed            = errors.New("device closed")
	ErrInstanceOverflow  = errors.New("instance overflow")
	ErrInstanceNotActive = errors.New("instance not active")
	ErrNotEphemeral      = errors.New("signal is not ephemeral")
)

// Report is delivered to observers when the observable state changes.
type Report struct {
	// Reason is "bind", "unbind", "rebind" or "ready".
	Reason string

	// Signal is the signal that triggered the report.
	Signal string

	Counts registry.Counts
}

// Stats counts device activity.
type Stats struct {
	Ticks   uint64
	Polls   uint64
	Batches uint64
	Updates uint64
}

// batch is the outbound transaction of the current tick.
type batch struct {
	ts      time.Time
	updates int
}

// Device is the runtime of one device context.
type Device struct {
	id     uuid.UUID
	config Config

	registry *registry.Registry
	router   *dispatch.Router
	network  dispatch.Network

	tickMu sync.Mutex

	batchMu sync.Mutex
	batch   *batch

	obsMu     sync.Mutex
	observers []func(Report)
	onTick    func()

	// Background loop
	loopMu  sync.Mutex
	cancel  context.CancelFunc
	loopWg  sync.WaitGroup
	running atomic.Bool
	closed  atomic.Bool

	ticks   atomic.Uint64
	polls   atomic.Uint64
	batches atomic.Uint64
	updates atomic.Uint64
}

// New creates a device over network. Networks implementing
// dispatch.Attacher are attached to the device's router; networks
// implementing dispatch.Registrar learn about handles as they come and go.
func New(network dispatch.Network, config Config) (*Device, error) {
	if network == nil {
		return nil, fmt.Errorf("%w: nil network", ErrInvalidConfig)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	d := &Device{
		id:       uuid.New(),
		config:   config,
		registry: registry.New(),
		network:  network,
	}
	d.router = dispatch.NewRouter(d.registry, batched{d})

	id := d.id.String()
	d.registry.SetLogger(config.EventLogger, id)
	d.router.SetLogger(config.EventLogger, id)
	d.router.SetClock(config.Clock)

	d.registry.OnRelease(d.handleReleased)
	d.router.OnReadyChange(func(h *signal.Handle) { d.report("ready", h.Name()) })

	if a, ok := network.(dispatch.Attacher); ok {
		a.Attach(d.router)
	}
	return d, nil
}

// ID returns the device context id.
func (d *Device) ID() string { return d.id.String() }

// Name returns the configured device name.
func (d *Device) Name() string { return d.config.Name }

// Registry returns the device's registry.
func (d *Device) Registry() *registry.Registry { return d.registry }

// Router returns the device's router.
func (d *Device) Router() *dispatch.Router { return d.router }

// OnReport registers an observer. Observers run synchronously, outside any
// device lock, in registration order.
func (d *Device) OnReport(fn func(Report)) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = append(d.observers, fn)
}

// OnTick sets a hook run at the start of every tick, before any poll.
// It runs with the tick serialized, so it must not call Tick.
func (d *Device) OnTick(fn func()) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.onTick = fn
}

func (d *Device) report(reason, name string) {
	d.obsMu.Lock()
	observers := make([]func(Report), len(d.observers))
	copy(observers, d.observers)
	d.obsMu.Unlock()

	if len(observers) == 0 {
		return
	}
	r := Report{Reason: reason, Signal: name, Counts: d.registry.Counts()}
	for _, fn := range observers {
		fn(r)
	}
}

func (d *Device) handleReleased(h *signal.Handle) {
	d.router.Forget(h)
	if reg, ok := d.network.(dispatch.Registrar); ok {
		reg.Unregister(h)
	}
}

// Bind binds consumer c to the signal described by spec at slot. A newly
// created handle is registered with the network when the network supports
// it.
func (d *Device) Bind(spec signal.Spec, c registry.Consumer, slot signal.Slot) (registry.BindResult, error) {
	if d.closed.Load() {
		return registry.BindResult{}, ErrClosed
	}
	res, err := d.registry.Bind(spec, c, slot)
	if err != nil {
		return res, err
	}
	if res.Created {
		if reg, ok := d.network.(dispatch.Registrar); ok {
			reg.Register(res.Handle)
		}
	}
	d.report("bind", spec.Name)
	return res, nil
}

// Unbind removes c's bindings (all, or those for names) and returns how
// many were removed.
func (d *Device) Unbind(c registry.Consumer, names ...string) int {
	n := d.registry.Unbind(c, names...)
	if n > 0 {
		name := ""
		if len(names) == 1 {
			name = names[0]
		}
		d.report("unbind", name)
	}
	return n
}

// RebindInstance moves c's bindings from one slot to another.
func (d *Device) RebindInstance(c registry.Consumer, from, to signal.Slot) error {
	if err := d.registry.RebindInstance(c, from, to); err != nil {
		return err
	}
	d.report("rebind", "")
	return nil
}

// SetValue queues an outbound value in the current batch.
//
// On an ephemeral signal, addressing an instance that is not active
// activates it. A full signal steals per its policy; without one the base
// consumers receive an overflow event, ErrInstanceOverflow is returned and
// the value is not sent.
func (d *Device) SetValue(h *signal.Handle, slot signal.Slot, v signal.Values) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !h.Live() {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, h)
	}
	if err := signal.CheckShape(h.Type(), h.Length(), v); err != nil {
		return err
	}

	if id, ok := slot.ID(); ok && h.Ephemeral() {
		if err := d.activate(h, id); err != nil {
			return err
		}
	} else if !h.Ephemeral() {
		slot = signal.Base()
	}

	ts := d.openBatch()
	d.network.SetValue(h, slot, v, ts)
	d.updates.Add(1)

	d.config.EventLogger.Log(log.Event{
		Timestamp: ts,
		DeviceID:  d.ID(),
		Layer:     log.LayerNetwork,
		Category:  log.CategoryValue,
		Signal:    h.Name(),
		Direction: h.Direction().String(),
		Slot:      slot.String(),
		Value:     &log.ValueEvent{Values: v.Float64s(), Outbound: true},
	})
	return nil
}

// activate makes id active on h, stealing per the signal's policy when the
// signal is full.
func (d *Device) activate(h *signal.Handle, id signal.InstanceID) error {
	t := d.router.Instances(h)
	if t == nil {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, h)
	}
	_, err := t.Activate(id, d.config.Clock())
	if errors.Is(err, instance.ErrCapacity) && d.router.Overflow(h, id) {
		_, err = t.Activate(id, d.config.Clock())
	}
	if errors.Is(err, instance.ErrCapacity) {
		return fmt.Errorf("%w: %s instance %d", ErrInstanceOverflow, h, id)
	}
	return err
}

// SetAtoms converts a host atom list and queues every resulting frame in
// order.
func (d *Device) SetAtoms(h *signal.Handle, slot signal.Slot, atoms []signal.Atom) error {
	frames, err := signal.Convert(h.Type(), h.Length(), atoms)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := d.SetValue(h, slot, f); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseInstance releases an active instance of an ephemeral signal
// locally. The slot is freed at once and the release joins the current
// batch; the instance's consumers receive it with OriginLocal when the
// network reports it back.
func (d *Device) ReleaseInstance(h *signal.Handle, id signal.InstanceID) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !h.Live() {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, h)
	}
	if !h.Ephemeral() {
		return fmt.Errorf("%w: %s", ErrNotEphemeral, h)
	}
	t := d.router.Instances(h)
	if t == nil || !t.Release(id) {
		return fmt.Errorf("%w: %s instance %d", ErrInstanceNotActive, h, id)
	}

	d.network.ReleaseInstance(h, id, d.openBatch())
	d.updates.Add(1)
	return nil
}

// openBatch returns the timestamp of the current batch, opening one if
// needed.
func (d *Device) openBatch() time.Time {
	d.batchMu.Lock()
	defer d.batchMu.Unlock()

	if d.batch == nil {
		d.batch = &batch{ts: d.config.Clock()}
	}
	d.batch.updates++
	return d.batch.ts
}

// Tick runs one cooperative cycle: up to PollBudget network polls, then
// the batch flush. It returns the number of polls that did work.
func (d *Device) Tick() int {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if d.closed.Load() {
		return 0
	}
	d.ticks.Add(1)

	d.obsMu.Lock()
	hook := d.onTick
	d.obsMu.Unlock()
	if hook != nil {
		hook()
	}

	worked := 0
	for i := 0; i < d.config.PollBudget; i++ {
		if !d.network.PollOnce() {
			break
		}
		worked++
	}
	d.polls.Add(uint64(worked))

	d.flush()
	return worked
}

func (d *Device) flush() {
	d.batchMu.Lock()
	b := d.batch
	d.batch = nil
	d.batchMu.Unlock()

	if b == nil {
		return
	}
	d.network.SendBatch(b.ts)
	d.batches.Add(1)
}

// Start runs Tick every TickInterval in a background goroutine until Stop
// or Close is called, or ctx is cancelled.
func (d *Device) Start(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.running.Swap(true) {
		return nil
	}

	d.loopMu.Lock()
	defer d.loopMu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.loopWg.Add(1)
	go d.loop(loopCtx)
	return nil
}

func (d *Device) loop(ctx context.Context) {
	defer d.loopWg.Done()

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Stop stops the background loop and waits for it to exit.
func (d *Device) Stop() {
	if !d.running.Swap(false) {
		return
	}

	d.loopMu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.loopWg.Wait()
}

// Running reports whether the background loop is active.
func (d *Device) Running() bool { return d.running.Load() }

// Close stops the loop, flushes any open batch, and destroys every binding
// and handle. Callers that track consumers should detach them first so
// consumer teardown precedes handle release. Close is idempotent.
func (d *Device) Close() {
	d.Stop()

	d.tickMu.Lock()
	if d.closed.Swap(true) {
		d.tickMu.Unlock()
		return
	}
	d.flush()
	d.tickMu.Unlock()

	d.registry.Close()
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool { return d.closed.Load() }

// Counts returns numInputs/numOutputs and consumer counts.
func (d *Device) Counts() registry.Counts { return d.registry.Counts() }

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	return Stats{
		Ticks:   d.ticks.Load(),
		Polls:   d.polls.Load(),
		Batches: d.batches.Load(),
		Updates: d.updates.Load(),
	}
}

// batched routes router-initiated network mutations through the current
// batch so that stolen releases are flushed with the next tick.
type batched struct {
	d *Device
}

func (b batched) PollOnce() bool { return b.d.network.PollOnce() }

func (b batched) SetValue(h *signal.Handle, slot signal.Slot, v signal.Values, _ time.Time) {
	b.d.network.SetValue(h, slot, v, b.d.openBatch())
}

func (b batched) ReleaseInstance(h *signal.Handle, id signal.InstanceID, _ time.Time) {
	b.d.network.ReleaseInstance(h, id, b.d.openBatch())
}

func (b batched) SendBatch(ts time.Time) { b.d.network.SendBatch(ts) }
