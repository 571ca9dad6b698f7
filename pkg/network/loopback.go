package network

import (
	"sync"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/dispatch"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// inbound is one queued network event.
type inbound func(dispatch.Sink)

// Loopback is an in-process network.
type Loopback struct {
	mu sync.Mutex

	sink       dispatch.Sink
	registered map[*signal.Handle]struct{}
	queue      []inbound
	routes     map[string][]string

	pending []Update
	seq     uint64
	sent    []Batch
	keep    int
	tap     *BatchWriter

	// Readiness
	autoReady bool

	logger   log.Logger
	deviceID string
}

var (
	_ dispatch.Network   = (*Loopback)(nil)
	_ dispatch.Attacher  = (*Loopback)(nil)
	_ dispatch.Registrar = (*Loopback)(nil)
)

// DefaultHistory is the number of sent batches a Loopback keeps.
const DefaultHistory = 64

// NewLoopback creates a loopback network. Registered handles become ready
// on the next poll.
func NewLoopback() *Loopback {
	return &Loopback{
		registered: make(map[*signal.Handle]struct{}),
		routes:     make(map[string][]string),
		keep:       DefaultHistory,
		autoReady:  true,
		logger:     log.NoopLogger{},
	}
}

// SetLogger sets the event logger used for tap write failures.
func (l *Loopback) SetLogger(logger log.Logger, deviceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = log.OrNoop(logger)
	l.deviceID = deviceID
}

// SetAutoReady controls whether Register queues a ready notification.
func (l *Loopback) SetAutoReady(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoReady = on
}

// SetHistory sets how many sent batches are retained. Zero keeps none.
func (l *Loopback) SetHistory(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keep = max(n, 0)
	l.trimLocked()
}

// Tap mirrors every sent batch to w as length-prefixed CBOR frames. A nil
// writer removes the tap.
func (l *Loopback) Tap(w *BatchWriter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tap = w
}

// Attach sets the sink that receives inbound events.
func (l *Loopback) Attach(s dispatch.Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
}

// Register announces h on the network.
func (l *Loopback) Register(h *signal.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered[h] = struct{}{}
	if l.autoReady {
		l.queue = append(l.queue, func(s dispatch.Sink) { s.OnReady(h) })
	}
}

// Unregister withdraws h. Events already queued for it are still delivered
// and dropped by the router.
func (l *Loopback) Unregister(h *signal.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.registered, h)
}

// Registered reports whether h is currently registered.
func (l *Loopback) Registered(h *signal.Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.registered[h]
	return ok
}

// Route feeds values and releases sent on output signal src back in as
// inbound traffic on input signal dst.
func (l *Loopback) Route(src, dst string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.routes[src] {
		if d == dst {
			return
		}
	}
	l.routes[src] = append(l.routes[src], dst)
}

// Unroute removes a route added by Route.
func (l *Loopback) Unroute(src, dst string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dsts := l.routes[src]
	for i, d := range dsts {
		if d == dst {
			l.routes[src] = append(dsts[:i:i], dsts[i+1:]...)
			break
		}
	}
	if len(l.routes[src]) == 0 {
		delete(l.routes, src)
	}
}

// InjectValue queues an inbound value update.
func (l *Loopback) InjectValue(h *signal.Handle, slot signal.Slot, v signal.Values) {
	v = v.Clone()
	l.enqueue(func(s dispatch.Sink) { s.OnValueUpdate(h, slot, v) })
}

// InjectRelease queues an inbound instance release.
func (l *Loopback) InjectRelease(h *signal.Handle, id signal.InstanceID, origin signal.Origin) {
	l.enqueue(func(s dispatch.Sink) { s.OnValueRelease(h, id, origin) })
}

// InjectOverflow queues an inbound overflow notification.
func (l *Loopback) InjectOverflow(h *signal.Handle, id signal.InstanceID) {
	l.enqueue(func(s dispatch.Sink) { s.OnInstanceOverflow(h, id) })
}

// InjectReady queues a ready notification for h.
func (l *Loopback) InjectReady(h *signal.Handle) {
	l.enqueue(func(s dispatch.Sink) { s.OnReady(h) })
}

// InjectReset queues a network reset.
func (l *Loopback) InjectReset() {
	l.enqueue(func(s dispatch.Sink) { s.OnReset() })
}

func (l *Loopback) enqueue(ev inbound) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, ev)
}

// Pending returns the number of queued inbound events.
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// PollOnce delivers one queued inbound event. It reports whether there was
// one. The sink runs without the loopback lock held.
func (l *Loopback) PollOnce() bool {
	l.mu.Lock()
	if len(l.queue) == 0 || l.sink == nil {
		l.mu.Unlock()
		return false
	}
	ev := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	sink := l.sink
	l.mu.Unlock()

	ev(sink)
	return true
}

// SetValue adds a value update to the open batch.
func (l *Loopback) SetValue(h *signal.Handle, slot signal.Slot, v signal.Values, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, valueUpdate(h.Name(), slot, v))
}

// ReleaseInstance adds an instance release to the open batch and reports it
// back to the sink as a local release on the next poll.
func (l *Loopback) ReleaseInstance(h *signal.Handle, id signal.InstanceID, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, releaseUpdate(h.Name(), id))
	l.queue = append(l.queue, func(s dispatch.Sink) { s.OnValueRelease(h, id, signal.OriginLocal) })
}

// SendBatch closes the open batch, records it, mirrors it to the tap and
// queues routed deliveries. An empty batch is still recorded.
func (l *Loopback) SendBatch(ts time.Time) {
	l.mu.Lock()
	l.seq++
	b := Batch{Seq: l.seq, Timestamp: ts, Updates: l.pending}
	l.pending = nil

	if l.keep > 0 {
		l.sent = append(l.sent, b)
		l.trimLocked()
	}
	for _, u := range b.Updates {
		l.routeLocked(u)
	}
	tap, logger, deviceID := l.tap, l.logger, l.deviceID
	l.mu.Unlock()

	if tap != nil {
		if err := tap.WriteBatch(b); err != nil {
			logger.Log(log.Event{
				Timestamp: ts,
				DeviceID:  deviceID,
				Layer:     log.LayerNetwork,
				Category:  log.CategoryError,
				Error:     &log.ErrorEventData{Message: err.Error(), Context: b.String()},
			})
		}
	}
}

func (l *Loopback) routeLocked(u Update) {
	for _, dst := range l.routes[u.Signal] {
		for h := range l.registered {
			if h.Name() != dst || h.Direction() != signal.DirectionInput {
				continue
			}
			h, slot := h, u.Slot()
			switch u.Kind {
			case UpdateValue:
				v := u.Values()
				l.queue = append(l.queue, func(s dispatch.Sink) { s.OnValueUpdate(h, slot, v) })
			case UpdateRelease:
				id, _ := slot.ID()
				l.queue = append(l.queue, func(s dispatch.Sink) { s.OnValueRelease(h, id, signal.OriginUpstream) })
			}
		}
	}
}

func (l *Loopback) trimLocked() {
	if n := len(l.sent) - l.keep; n > 0 {
		l.sent = append([]Batch(nil), l.sent[n:]...)
	}
}

// Sent returns the retained batches, oldest first.
func (l *Loopback) Sent() []Batch {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Batch, len(l.sent))
	copy(out, l.sent)
	return out
}

// TakeSent returns and clears the retained batches.
func (l *Loopback) TakeSent() []Batch {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.sent
	l.sent = nil
	return out
}
