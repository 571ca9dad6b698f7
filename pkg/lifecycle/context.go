package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// IntentKind is a queued membership change.
type IntentKind uint8

const (
	IntentAttach IntentKind = iota + 1
	IntentDetach
)

// String returns the intent name.
func (k IntentKind) String() string {
	switch k {
	case IntentAttach:
		return "attach"
	case IntentDetach:
		return "detach"
	default:
		return "unknown"
	}
}

// Intent asks for a consumer to be attached or detached on the next Apply.
type Intent struct {
	Kind     IntentKind
	Consumer registry.Consumer
}

// Context is one device context: a device plus its attached consumers.
type Context struct {
	tracker   *Tracker
	container Container
	dev       *device.Device

	// bindMu serializes Bind against Detach so a binding is never added
	// for a consumer that has just been detached.
	bindMu sync.Mutex

	mu        sync.Mutex
	consumers []registry.Consumer
	attached  map[registry.Consumer]struct{}
	intents   []Intent
	closing   bool
	destroyed bool

	applying atomic.Bool
}

func newContext(t *Tracker, c Container, dev *device.Device) *Context {
	ctx := &Context{
		tracker:   t,
		container: c,
		dev:       dev,
		attached:  make(map[registry.Consumer]struct{}),
	}
	dev.OnTick(func() { _, _ = ctx.Apply() })
	return ctx
}

// Container returns the hosting container.
func (c *Context) Container() Container { return c.container }

// Device returns the context's device.
func (c *Context) Device() *device.Device { return c.dev }

// Destroyed reports whether the context has been torn down.
func (c *Context) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Attach adds consumer to the context. Attaching twice is a no-op.
func (c *Context) Attach(consumer registry.Consumer) error {
	if consumer == nil {
		return registry.ErrNilConsumer
	}
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrContextDestroyed
	}
	if _, ok := c.attached[consumer]; ok {
		c.mu.Unlock()
		return nil
	}
	c.attached[consumer] = struct{}{}
	c.consumers = append(c.consumers, consumer)
	c.mu.Unlock()

	c.logConsumer(consumer, "DETACHED", "ATTACHED")
	return nil
}

// Detach removes consumer and every binding it holds. It returns the number
// of bindings removed. Detaching an unknown consumer is a no-op.
func (c *Context) Detach(consumer registry.Consumer) int {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	c.mu.Lock()
	if _, ok := c.attached[consumer]; !ok {
		c.mu.Unlock()
		return 0
	}
	delete(c.attached, consumer)
	for i, x := range c.consumers {
		if x == consumer {
			c.consumers = append(c.consumers[:i], c.consumers[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	n := c.dev.Unbind(consumer)
	c.logConsumer(consumer, "ATTACHED", "DETACHED")
	return n
}

// Attached reports whether consumer is attached.
func (c *Context) Attached(consumer registry.Consumer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attached[consumer]
	return ok
}

// Consumers returns the attached consumers in attach order.
func (c *Context) Consumers() []registry.Consumer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]registry.Consumer, len(c.consumers))
	copy(out, c.consumers)
	return out
}

// Bind binds an attached consumer to the signal described by spec.
func (c *Context) Bind(consumer registry.Consumer, spec signal.Spec, slot signal.Slot) (registry.BindResult, error) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()

	c.mu.Lock()
	closing := c.closing
	_, ok := c.attached[consumer]
	c.mu.Unlock()

	if closing {
		return registry.BindResult{}, ErrContextDestroyed
	}
	if !ok {
		return registry.BindResult{}, ErrNotAttached
	}
	return c.dev.Bind(spec, consumer, slot)
}

// Enqueue queues an intent for the next Apply. Intents queued on a
// destroyed context are discarded.
func (c *Context) Enqueue(in Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.intents = append(c.intents, in)
}

// Pending returns the number of queued intents.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.intents)
}

// Apply applies the queued intents in order and returns how many were
// applied. Intents queued while applying wait for the next Apply.
func (c *Context) Apply() (int, error) {
	if !c.applying.CompareAndSwap(false, true) {
		return 0, ErrReentrantApply
	}
	defer c.applying.Store(false)

	c.mu.Lock()
	intents := c.intents
	c.intents = nil
	c.mu.Unlock()

	var errs []error
	for _, in := range intents {
		switch in.Kind {
		case IntentAttach:
			if err := c.Attach(in.Consumer); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", in.Kind, err))
			}
		case IntentDetach:
			c.Detach(in.Consumer)
		default:
			errs = append(errs, fmt.Errorf("unknown intent %d", in.Kind))
		}
	}
	return len(intents), errors.Join(errs...)
}

func (c *Context) teardown() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrContextDestroyed
	}
	c.closing = true
	intents := c.intents
	c.intents = nil
	c.mu.Unlock()

	// Queued detaches keep their order; queued attaches are moot.
	for _, in := range intents {
		if in.Kind == IntentDetach {
			c.Detach(in.Consumer)
		}
	}
	for _, consumer := range c.Consumers() {
		c.Detach(consumer)
	}

	c.dev.Close()

	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
	return nil
}

func (c *Context) logConsumer(consumer registry.Consumer, from, to string) {
	c.tracker.eventLogger().Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  c.dev.ID(),
		Layer:     log.LayerLifecycle,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConsumer,
			OldState: from,
			NewState: to,
			Reason:   fmt.Sprintf("%v", consumer),
		},
	})
}
