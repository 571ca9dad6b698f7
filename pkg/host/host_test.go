package host

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/lifecycle"
	"github.com/libmapper/libmapper-max-sub000/pkg/network"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

type message struct {
	msg   string
	atoms []string
}

type outlet struct {
	got []message
}

func (o *outlet) Send(msg string, atoms []signal.Atom) {
	m := message{msg: msg}
	for _, a := range atoms {
		m.atoms = append(m.atoms, a.String())
	}
	o.got = append(o.got, m)
}

func (o *outlet) take() []message {
	out := o.got
	o.got = nil
	return out
}

type patch struct {
	tracker *lifecycle.Tracker
	root    *lifecycle.Node
	ctx     *lifecycle.Context
	net     *network.Loopback
	console *logrus.Logger
	hook    *test.Hook
}

func newPatch(t *testing.T) *patch {
	t.Helper()
	p := &patch{root: lifecycle.NewNode("patch")}
	p.console, p.hook = test.NewNullLogger()
	p.tracker = lifecycle.NewTracker(func(lifecycle.Container) (*device.Device, error) {
		p.net = network.NewLoopback()
		return device.New(p.net, device.DefaultConfig())
	})
	ctx, err := p.tracker.RegisterContext(p.root)
	require.NoError(t, err)
	p.ctx = ctx
	t.Cleanup(p.tracker.Close)
	return p
}

func (p *patch) object(t *testing.T, dir signal.Direction, args ...string) (*Object, *outlet) {
	t.Helper()
	out := &outlet{}
	o, err := New(p.tracker, p.root.Add("obj"), dir, args, out, p.console)
	require.NoError(t, err)
	return o, out
}

func (p *patch) tick() { p.ctx.Device().Tick() }

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Args
	}{
		{
			name: "defaults",
			args: []string{"level"},
			want: Args{
				Spec: signal.Spec{Name: "level", Direction: signal.DirectionInput, Type: signal.TypeFloat32, Length: 1, MaxInstances: 1},
				Slot: signal.Base(),
			},
		},
		{
			name: "all properties",
			args: []string{"touch", "@type", "i", "@length", "2", "@ephemeral", "1", "@steal", "oldest", "@instances", "8", "@instance", "3"},
			want: Args{
				Spec: signal.Spec{
					Name:         "touch",
					Direction:    signal.DirectionInput,
					Type:         signal.TypeInt32,
					Length:       2,
					Ephemeral:    true,
					Steal:        signal.StealOldest,
					MaxInstances: 8,
				},
				Slot: signal.Instance(3),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(signal.DirectionInput, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "empty", args: nil},
		{name: "no name", args: []string{"@type", "f"}},
		{name: "bad type", args: []string{"x", "@type", "double"}},
		{name: "bad steal", args: []string{"x", "@steal", "random"}},
		{name: "zero length", args: []string{"x", "@length", "0"}},
		{name: "unknown property", args: []string{"x", "@color", "red"}},
		{name: "stray argument", args: []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(signal.DirectionOutput, tt.args)
			assert.ErrorIs(t, err, signal.ErrInvalidSpec)
		})
	}
}

func TestDiagnostic(t *testing.T) {
	assert.Empty(t, Diagnostic(nil))
	assert.Empty(t, Diagnostic(fmt.Errorf("late: %w", registry.ErrNotFound)))
	assert.Empty(t, Diagnostic(lifecycle.ErrContextDestroyed))
	assert.Contains(t, Diagnostic(registry.ErrSignalTypeConflict), "signal type conflict")
	assert.Contains(t, Diagnostic(lifecycle.ErrNestedContextConflict), "one device context")
	assert.Contains(t, Diagnostic(signal.ErrIllegalValueShape), "wrong number of values")
	assert.Equal(t, "boom", Diagnostic(fmt.Errorf("boom")))
}

func TestNewWithoutContext(t *testing.T) {
	console, hook := test.NewNullLogger()
	tracker := lifecycle.NewTracker(nil)
	_, err := New(tracker, lifecycle.NewNode("orphan"), signal.DirectionOutput, []string{"x"}, &outlet{}, console)
	assert.ErrorIs(t, err, lifecycle.ErrNoContext)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "x", hook.LastEntry().Data["object"])
}

func TestOutputToInputThroughRoute(t *testing.T) {
	p := newPatch(t)
	src, _ := p.object(t, signal.DirectionOutput, "slider")
	_, dstOut := p.object(t, signal.DirectionInput, "level")
	p.net.Route("slider", "level")
	p.tick()

	require.NoError(t, src.HandleMessage(0, "float", []signal.Atom{signal.FloatAtom(0.5)}))
	p.tick()
	p.tick()
	assert.Equal(t, []message{{msg: "float", atoms: []string{"0.5"}}}, dstOut.take())

	assert.Equal(t, 1, p.ctx.Device().Counts().Inputs)
	assert.Equal(t, 1, p.ctx.Device().Counts().Outputs)
}

func TestTypeConflictDetachesObject(t *testing.T) {
	p := newPatch(t)
	first, _ := p.object(t, signal.DirectionOutput, "x", "@type", "f")

	_, err := New(p.tracker, p.root.Add("obj"), signal.DirectionOutput, []string{"x", "@type", "i"}, &outlet{}, p.console)
	assert.ErrorIs(t, err, registry.ErrSignalTypeConflict)
	assert.Contains(t, p.hook.LastEntry().Message, "signal type conflict")

	assert.Equal(t, []registry.Consumer{first}, p.ctx.Consumers())
	assert.Equal(t, signal.TypeFloat32, first.Handle().Type())
}

func TestInputRejectsValues(t *testing.T) {
	p := newPatch(t)
	in, _ := p.object(t, signal.DirectionInput, "level")
	err := in.HandleMessage(0, "float", []signal.Atom{signal.FloatAtom(1)})
	assert.ErrorIs(t, err, ErrWrongDirection)
}

func TestShapeErrorIsReported(t *testing.T) {
	p := newPatch(t)
	o, _ := p.object(t, signal.DirectionOutput, "xy", "@length", "2")
	err := o.HandleMessage(0, "list", []signal.Atom{signal.FloatAtom(1), signal.FloatAtom(2), signal.FloatAtom(3)})
	assert.ErrorIs(t, err, signal.ErrIllegalValueShape)
	assert.Contains(t, p.hook.LastEntry().Message, "wrong number of values")

	assert.Error(t, o.HandleMessage(0, "bang", nil))
}

func TestInstanceReleaseRoundTrip(t *testing.T) {
	p := newPatch(t)
	o, out := p.object(t, signal.DirectionOutput, "touch", "@ephemeral", "1", "@instances", "2", "@instance", "1")
	p.tick()

	require.NoError(t, o.HandleMessage(0, "float", []signal.Atom{signal.FloatAtom(0.25)}))
	require.NoError(t, o.HandleMessage(0, "release", nil))
	p.tick()

	assert.Equal(t, []message{{msg: "release", atoms: []string{"1", fmt.Sprint(int(signal.OriginLocal))}}}, out.take())

	// Releasing again is an error: the instance is no longer active.
	assert.Error(t, o.HandleMessage(0, "release", nil))
}

func TestRebindInstance(t *testing.T) {
	p := newPatch(t)
	o, _ := p.object(t, signal.DirectionInput, "touch", "@ephemeral", "1", "@instances", "4")
	h := o.Handle()

	require.NoError(t, o.HandleMessage(0, "instance", []signal.Atom{signal.IntAtom(2)}))
	assert.Equal(t, signal.Instance(2), o.Slot())
	assert.True(t, p.ctx.Device().Registry().HasSlot(h, signal.Instance(2)))
	assert.False(t, p.ctx.Device().Registry().HasSlot(h, signal.Base()))

	require.NoError(t, o.HandleMessage(0, "instance", nil))
	assert.Equal(t, signal.Base(), o.Slot())

	assert.Error(t, o.HandleMessage(0, "release", nil))
}

func TestInstanceTaggedDelivery(t *testing.T) {
	p := newPatch(t)
	o, out := p.object(t, signal.DirectionInput, "touch", "@ephemeral", "1", "@instances", "4")
	p.tick()

	p.net.InjectValue(o.Handle(), signal.Instance(3), signal.Float32s(0.5))
	p.net.InjectOverflow(o.Handle(), 9)
	p.tick()

	assert.Equal(t, []message{
		{msg: "instance", atoms: []string{"3", "0.5"}},
		{msg: "overflow", atoms: []string{"9"}},
	}, out.take())
}

func TestFreeDetachesOnNextTick(t *testing.T) {
	p := newPatch(t)
	o, out := p.object(t, signal.DirectionInput, "level")
	h := o.Handle()
	p.tick()

	p.net.InjectValue(h, signal.Base(), signal.Float32s(1))
	o.Free()
	o.Free()
	assert.True(t, o.Freed())
	assert.Equal(t, 1, p.ctx.Pending())

	p.tick()
	assert.Empty(t, out.take(), "freed objects receive nothing")
	assert.False(t, p.ctx.Attached(o))
	assert.Equal(t, signal.StateDestroyed, h.State())
	assert.NoError(t, o.HandleMessage(0, "float", []signal.Atom{signal.FloatAtom(1)}))
}
