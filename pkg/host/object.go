package host

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/libmapper/libmapper-max-sub000/pkg/lifecycle"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// ErrWrongDirection is returned for value messages sent to an input object.
var ErrWrongDirection = errors.New("input objects do not accept values")

// Outlet receives the messages an object emits.
type Outlet interface {
	Send(msg string, atoms []signal.Atom)
}

// OutletFunc adapts a function to Outlet.
type OutletFunc func(msg string, atoms []signal.Atom)

// Send calls f.
func (f OutletFunc) Send(msg string, atoms []signal.Atom) { f(msg, atoms) }

// Object is one signal object in a host patch.
type Object struct {
	name    string
	ctx     *lifecycle.Context
	out     Outlet
	console logrus.FieldLogger

	mu     sync.Mutex
	handle *signal.Handle
	slot   signal.Slot

	freed    atomic.Bool
	freeOnce sync.Once
}

var _ registry.Consumer = (*Object)(nil)

// New creates an object inside container where. The enclosing device
// context is found through tracker. On failure the diagnostic has already
// been posted and the object is detached.
func New(tracker *lifecycle.Tracker, where lifecycle.Container, dir signal.Direction, args []string, out Outlet, console logrus.FieldLogger) (*Object, error) {
	if console == nil {
		console = logrus.StandardLogger()
	}
	o := &Object{out: out}
	if len(args) > 0 {
		o.name = args[0]
	}
	o.console = console.WithFields(logrus.Fields{"object": o.name, "direction": dir.String()})

	ctx, err := tracker.Enclosing(where)
	if err != nil {
		o.report(err)
		return nil, err
	}
	o.ctx = ctx

	parsed, err := ParseArgs(dir, args)
	if err != nil {
		o.report(err)
		return nil, err
	}

	if err := ctx.Attach(o); err != nil {
		o.report(err)
		return nil, err
	}
	res, err := ctx.Bind(o, parsed.Spec, parsed.Slot)
	if err != nil {
		o.report(err)
		o.detach()
		return nil, err
	}

	o.handle = res.Handle
	o.slot = parsed.Slot
	o.console.WithFields(logrus.Fields{
		"signals":   res.Signals,
		"consumers": res.Consumers,
		"created":   res.Created,
	}).Debug("bound")
	return o, nil
}

// String returns the signal name.
func (o *Object) String() string { return o.name }

// Handle returns the bound signal handle.
func (o *Object) Handle() *signal.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle
}

// Slot returns the slot the object is bound at.
func (o *Object) Slot() signal.Slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slot
}

// HandleMessage processes one inlet message:
//
//	int / float / list  send values (output objects only)
//	instance [id]       rebind to an instance, or to the base slot
//	release             release the bound instance
func (o *Object) HandleMessage(inlet int, msg string, atoms []signal.Atom) error {
	if o.freed.Load() {
		return nil
	}
	var err error
	switch msg {
	case "int", "float", "list":
		err = o.set(atoms)
	case "instance":
		err = o.rebind(atoms)
	case "release":
		err = o.release()
	default:
		err = fmt.Errorf("unknown message %q on inlet %d", msg, inlet)
	}
	o.report(err)
	return err
}

func (o *Object) set(atoms []signal.Atom) error {
	h, slot := o.Handle(), o.Slot()
	if h.Direction() != signal.DirectionOutput {
		return ErrWrongDirection
	}
	return o.ctx.Device().SetAtoms(h, slot, atoms)
}

func (o *Object) rebind(atoms []signal.Atom) error {
	to := signal.Base()
	if len(atoms) > 0 {
		a := atoms[0]
		id := a.Int
		if a.Kind == signal.AtomFloat {
			id = int64(a.Float)
		}
		if id < 0 {
			return fmt.Errorf("%w: instance %d", signal.ErrInvalidSpec, id)
		}
		to = signal.Instance(signal.InstanceID(id))
	}

	from := o.Slot()
	if from == to {
		return nil
	}
	if err := o.ctx.Device().RebindInstance(o, from, to); err != nil {
		return err
	}
	o.mu.Lock()
	o.slot = to
	o.mu.Unlock()
	return nil
}

func (o *Object) release() error {
	id, ok := o.Slot().ID()
	if !ok {
		return fmt.Errorf("%w: object is not bound to an instance", registry.ErrBindingNotFound)
	}
	return o.ctx.Device().ReleaseInstance(o.Handle(), id)
}

// DeliverValue emits a received value. Values for an instance the object
// is not bound to are prefixed by the instance id.
func (o *Object) DeliverValue(h *signal.Handle, slot signal.Slot, v signal.Values) {
	if o.freed.Load() {
		return
	}
	atoms := v.Atoms()
	if id, ok := slot.ID(); ok && slot != o.Slot() {
		o.out.Send("instance", append([]signal.Atom{signal.IntAtom(int64(id))}, atoms...))
		return
	}
	o.out.Send(valueMessage(h, atoms), atoms)
}

// DeliverEvent emits "release id origin" or "overflow id".
func (o *Object) DeliverEvent(h *signal.Handle, ev signal.Event) {
	if o.freed.Load() {
		return
	}
	id, _ := ev.Slot.ID()
	switch ev.Kind {
	case signal.EventRelease:
		o.out.Send("release", []signal.Atom{signal.IntAtom(int64(id)), signal.IntAtom(int64(ev.Origin))})
	case signal.EventOverflow:
		o.out.Send("overflow", []signal.Atom{signal.IntAtom(int64(id))})
	}
}

func valueMessage(h *signal.Handle, atoms []signal.Atom) string {
	if len(atoms) != 1 {
		return "list"
	}
	if h.Type() == signal.TypeInt32 {
		return "int"
	}
	return "float"
}

// Free detaches the object. The detach is queued and applied on the
// context's next tick; deliveries stop at once. Free is idempotent.
func (o *Object) Free() {
	o.freeOnce.Do(func() {
		o.freed.Store(true)
		o.ctx.Enqueue(lifecycle.Intent{Kind: lifecycle.IntentDetach, Consumer: o})
	})
}

// detach is the synchronous Free used on construction failure.
func (o *Object) detach() {
	o.freeOnce.Do(func() {
		o.freed.Store(true)
		o.ctx.Detach(o)
	})
}

// Freed reports whether Free has been called.
func (o *Object) Freed() bool { return o.freed.Load() }

func (o *Object) report(err error) {
	if msg := Diagnostic(err); msg != "" {
		o.console.Error(msg)
	}
}
