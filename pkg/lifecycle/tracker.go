package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
)

// Factory creates the device for a newly registered container.
type Factory func(c Container) (*device.Device, error)

// Tracker enforces one device context per containment path and owns the
// registered contexts.
type Tracker struct {
	mu       sync.Mutex
	contexts map[Container]*Context
	factory  Factory
	logger   log.Logger

	onRegistered func(*Context)
	onDestroyed  func(*Context)
}

// NewTracker creates a tracker that builds devices with factory.
func NewTracker(factory Factory) *Tracker {
	return &Tracker{
		contexts: make(map[Container]*Context),
		factory:  factory,
		logger:   log.NoopLogger{},
	}
}

// SetLogger sets the event logger for context and consumer state changes.
func (t *Tracker) SetLogger(logger log.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = log.OrNoop(logger)
}

// OnContextRegistered sets the callback invoked after a context is created.
func (t *Tracker) OnContextRegistered(fn func(*Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRegistered = fn
}

// OnContextDestroyed sets the callback invoked after a context is torn down.
func (t *Tracker) OnContextDestroyed(fn func(*Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDestroyed = fn
}

// RegisterContext creates a device context hosted by c. It fails with
// ErrNestedContextConflict if an ancestor or descendant of c already hosts
// one, and with ErrContextExists if c itself does.
func (t *Tracker) RegisterContext(c Container) (*Context, error) {
	t.mu.Lock()
	err := t.conflictLocked(c)
	factory := t.factory
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// factory runs unlocked; the container is checked again below.
	dev, err := factory(c)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}

	t.mu.Lock()
	if err := t.conflictLocked(c); err != nil {
		t.mu.Unlock()
		dev.Close()
		return nil, err
	}
	ctx := newContext(t, c, dev)
	t.contexts[c] = ctx
	logger, cb := t.logger, t.onRegistered
	t.mu.Unlock()

	logger.Log(contextEvent(ctx, "", "ACTIVE", "registered"))
	if cb != nil {
		cb(ctx)
	}
	return ctx, nil
}

func (t *Tracker) conflictLocked(c Container) error {
	if _, ok := t.contexts[c]; ok {
		return ErrContextExists
	}
	if owner := t.ancestorLocked(c); owner != nil {
		return fmt.Errorf("%w: enclosing container %v hosts one", ErrNestedContextConflict, owner)
	}
	if owner := t.descendantLocked(c); owner != nil {
		return fmt.Errorf("%w: contained container %v hosts one", ErrNestedContextConflict, owner)
	}
	return nil
}

func (t *Tracker) ancestorLocked(c Container) Container {
	for p := c.Parent(); p != nil; p = p.Parent() {
		if _, ok := t.contexts[p]; ok {
			return p
		}
	}
	return nil
}

func (t *Tracker) descendantLocked(c Container) Container {
	queue := c.Children()
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, ok := t.contexts[n]; ok {
			return n
		}
		queue = append(queue, n.Children()...)
	}
	return nil
}

// Enclosing returns the context hosted by c or its nearest ancestor.
func (t *Tracker) Enclosing(c Container) (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for n := c; n != nil; n = n.Parent() {
		if ctx, ok := t.contexts[n]; ok {
			return ctx, nil
		}
	}
	return nil, ErrNoContext
}

// Contexts returns the registered contexts in no particular order.
func (t *Tracker) Contexts() []*Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Context, 0, len(t.contexts))
	for _, ctx := range t.contexts {
		out = append(out, ctx)
	}
	return out
}

// Teardown detaches every consumer still attached to ctx, closes its
// device (releasing every signal handle), and marks it destroyed.
func (t *Tracker) Teardown(ctx *Context) error {
	if err := ctx.teardown(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.contexts[ctx.container] == ctx {
		delete(t.contexts, ctx.container)
	}
	logger, cb := t.logger, t.onDestroyed
	t.mu.Unlock()

	logger.Log(contextEvent(ctx, "ACTIVE", "DESTROYED", "teardown"))
	if cb != nil {
		cb(ctx)
	}
	return nil
}

// Close tears down every context.
func (t *Tracker) Close() {
	for _, ctx := range t.Contexts() {
		_ = t.Teardown(ctx)
	}
}

func (t *Tracker) eventLogger() log.Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logger
}

func contextEvent(ctx *Context, from, to, reason string) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		DeviceID:  ctx.dev.ID(),
		Layer:     log.LayerLifecycle,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityContext,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	}
}
