package device

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/libmapper/libmapper-max-sub000/pkg/network"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type received struct {
	slot   signal.Slot
	values []float64
	event  *signal.Event
}

type recConsumer struct {
	name string

	mu  sync.Mutex
	got []received
}

func (c *recConsumer) String() string { return c.name }

func (c *recConsumer) DeliverValue(h *signal.Handle, slot signal.Slot, v signal.Values) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, received{slot: slot, values: v.Float64s()})
}

func (c *recConsumer) DeliverEvent(h *signal.Handle, ev signal.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := ev
	c.got = append(c.got, received{slot: ev.Slot, event: &e})
}

func (c *recConsumer) take() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.got
	c.got = nil
	return out
}

var (
	epoch = time.Unix(1700000000, 0).UTC()

	slider = signal.Spec{Name: "slider", Direction: signal.DirectionOutput, Type: signal.TypeFloat32, Length: 1}
	level  = signal.Spec{Name: "level", Direction: signal.DirectionInput, Type: signal.TypeFloat32, Length: 1}
	xy     = signal.Spec{Name: "xy", Direction: signal.DirectionOutput, Type: signal.TypeInt32, Length: 2}
)

func touch(policy signal.StealPolicy, capacity int) signal.Spec {
	return signal.Spec{
		Name:         "touch",
		Direction:    signal.DirectionOutput,
		Type:         signal.TypeFloat32,
		Length:       1,
		Ephemeral:    true,
		Steal:        policy,
		MaxInstances: capacity,
	}
}

func newTestDevice(t *testing.T) (*Device, *network.Loopback) {
	t.Helper()
	lb := network.NewLoopback()
	cfg := DefaultConfig()
	cfg.Clock = func() time.Time { return epoch }
	d, err := New(lb, cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, lb
}

func bind(t *testing.T, d *Device, spec signal.Spec, c registry.Consumer, slot signal.Slot) *signal.Handle {
	t.Helper()
	res, err := d.Bind(spec, c, slot)
	require.NoError(t, err)
	return res.Handle
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(network.NewLoopback(), Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d, err := New(network.NewLoopback(), Config{Name: "x"})
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, "x", d.Name())
	assert.NotEmpty(t, d.ID())
}

func TestBindRegistersAndBecomesReady(t *testing.T) {
	d, lb := newTestDevice(t)
	var reports []Report
	d.OnReport(func(r Report) { reports = append(reports, r) })

	h := bind(t, d, slider, &recConsumer{name: "a"}, signal.Base())
	assert.True(t, lb.Registered(h))
	assert.Equal(t, signal.StateBound, h.State())

	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, signal.StateReady, h.State())

	require.Len(t, reports, 2)
	assert.Equal(t, "bind", reports[0].Reason)
	assert.Equal(t, 1, reports[0].Counts.Outputs)
	assert.Equal(t, "ready", reports[1].Reason)
	assert.Equal(t, "slider", reports[1].Signal)
}

func TestBindTypeConflict(t *testing.T) {
	d, _ := newTestDevice(t)
	h := bind(t, d, slider, &recConsumer{name: "a"}, signal.Base())

	bad := slider
	bad.Type = signal.TypeInt32
	res, err := d.Bind(bad, &recConsumer{name: "b"}, signal.Base())
	assert.ErrorIs(t, err, registry.ErrSignalTypeConflict)
	assert.Same(t, h, res.Handle)
}

func TestUnbindLastReleasesHandle(t *testing.T) {
	d, lb := newTestDevice(t)
	a := &recConsumer{name: "a"}
	h := bind(t, d, slider, a, signal.Base())

	assert.Equal(t, 1, d.Unbind(a))
	assert.Equal(t, signal.StateDestroyed, h.State())
	assert.False(t, lb.Registered(h))
	assert.Zero(t, d.Unbind(a))

	err := d.SetValue(h, signal.Base(), signal.Float32s(1))
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestMutationsShareOneBatchPerTick(t *testing.T) {
	d, lb := newTestDevice(t)
	h := bind(t, d, slider, &recConsumer{name: "a"}, signal.Base())
	d.Tick()
	lb.TakeSent()

	require.NoError(t, d.SetValue(h, signal.Base(), signal.Float32s(0.1)))
	require.NoError(t, d.SetValue(h, signal.Base(), signal.Float32s(0.2)))
	d.Tick()
	d.Tick()

	sent := lb.TakeSent()
	require.Len(t, sent, 1, "an idle tick sends nothing")
	assert.Len(t, sent[0].Updates, 2)
	assert.True(t, epoch.Equal(sent[0].Timestamp))
	assert.Equal(t, uint64(1), d.Stats().Batches)
	assert.Equal(t, uint64(2), d.Stats().Updates)
}

func TestSetValueNonEphemeralIgnoresInstance(t *testing.T) {
	d, lb := newTestDevice(t)
	h := bind(t, d, slider, &recConsumer{name: "a"}, signal.Base())

	require.NoError(t, d.SetValue(h, signal.Instance(4), signal.Float32s(1)))
	d.Tick()
	sent := lb.TakeSent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Updates[0].Slot().IsBase())
}

func TestSetValueShape(t *testing.T) {
	d, _ := newTestDevice(t)
	h := bind(t, d, xy, &recConsumer{name: "a"}, signal.Base())

	err := d.SetValue(h, signal.Base(), signal.Int32s(1))
	assert.ErrorIs(t, err, signal.ErrIllegalValueShape)

	err = d.SetValue(h, signal.Base(), signal.Float32s(1, 2))
	assert.ErrorIs(t, err, signal.ErrIllegalValueShape)
}

func TestSetAtomsSendsEveryFrame(t *testing.T) {
	d, lb := newTestDevice(t)
	h := bind(t, d, xy, &recConsumer{name: "a"}, signal.Base())

	atoms := []signal.Atom{signal.FloatAtom(1.9), signal.IntAtom(2), signal.IntAtom(3), signal.IntAtom(4)}
	require.NoError(t, d.SetAtoms(h, signal.Base(), atoms))
	d.Tick()

	sent := lb.TakeSent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Updates, 2)
	assert.Equal(t, []int32{1, 2}, sent[0].Updates[0].Int32)
	assert.Equal(t, []int32{3, 4}, sent[0].Updates[1].Int32)

	assert.Error(t, d.SetAtoms(h, signal.Base(), atoms[:3]))
}

func TestEphemeralActivationAndLocalRelease(t *testing.T) {
	d, lb := newTestDevice(t)
	base := &recConsumer{name: "base"}
	h := bind(t, d, touch(signal.StealNone, 2), base, signal.Base())

	require.NoError(t, d.SetValue(h, signal.Instance(1), signal.Float32s(0.5)))
	assert.True(t, d.Router().Instances(h).IsActive(1))

	require.NoError(t, d.ReleaseInstance(h, 1))
	assert.False(t, d.Router().Instances(h).IsActive(1))
	assert.ErrorIs(t, d.ReleaseInstance(h, 1), ErrInstanceNotActive)

	// The release is flushed and reported back by the network.
	d.Tick()
	got := base.take()
	require.Len(t, got, 1)
	require.NotNil(t, got[0].event)
	assert.Equal(t, signal.EventRelease, got[0].event.Kind)
	assert.Equal(t, signal.OriginLocal, got[0].event.Origin)

	sent := lb.TakeSent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Updates, 2)
	assert.Equal(t, network.UpdateRelease, sent[0].Updates[1].Kind)
}

func TestReleaseInstanceOnNonEphemeral(t *testing.T) {
	d, _ := newTestDevice(t)
	h := bind(t, d, slider, &recConsumer{name: "a"}, signal.Base())
	assert.ErrorIs(t, d.ReleaseInstance(h, 1), ErrNotEphemeral)
}

func TestLocalOverflowWithoutPolicy(t *testing.T) {
	d, lb := newTestDevice(t)
	base := &recConsumer{name: "base"}
	h := bind(t, d, touch(signal.StealNone, 1), base, signal.Base())

	require.NoError(t, d.SetValue(h, signal.Instance(1), signal.Float32s(1)))
	err := d.SetValue(h, signal.Instance(2), signal.Float32s(2))
	assert.ErrorIs(t, err, ErrInstanceOverflow)

	got := base.take()
	require.Len(t, got, 1)
	require.NotNil(t, got[0].event)
	assert.Equal(t, signal.EventOverflow, got[0].event.Kind)
	assert.Equal(t, signal.Instance(2), got[0].slot)

	d.Tick()
	sent := lb.TakeSent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Updates, 1, "the overflowing value is not sent")
}

func TestLocalOverflowStealsOldest(t *testing.T) {
	d, lb := newTestDevice(t)
	base := &recConsumer{name: "base"}
	h := bind(t, d, touch(signal.StealOldest, 1), base, signal.Base())

	require.NoError(t, d.SetValue(h, signal.Instance(1), signal.Float32s(1)))
	require.NoError(t, d.SetValue(h, signal.Instance(2), signal.Float32s(2)))
	assert.Empty(t, base.take())
	assert.Equal(t, uint64(1), d.Router().Stats().Stolen)

	d.Tick()
	got := base.take()
	require.Len(t, got, 1)
	assert.Equal(t, signal.EventRelease, got[0].event.Kind)
	assert.Equal(t, signal.Instance(1), got[0].slot)
	assert.True(t, d.Router().Instances(h).IsActive(2))

	sent := lb.TakeSent()
	require.Len(t, sent, 1, "the stolen release joins the open batch")
	kinds := []network.UpdateKind{}
	for _, u := range sent[0].Updates {
		kinds = append(kinds, u.Kind)
	}
	assert.Equal(t, []network.UpdateKind{network.UpdateValue, network.UpdateRelease, network.UpdateValue}, kinds)
}

func TestRoutedValuesArriveNextTick(t *testing.T) {
	d, lb := newTestDevice(t)
	in := &recConsumer{name: "in"}
	out := bind(t, d, slider, &recConsumer{name: "out"}, signal.Base())
	bind(t, d, level, in, signal.Base())
	lb.Route("slider", "level")
	d.Tick()

	require.NoError(t, d.SetValue(out, signal.Base(), signal.Float32s(0.75)))
	d.Tick()
	assert.Empty(t, in.take())

	d.Tick()
	got := in.take()
	require.Len(t, got, 1)
	assert.Equal(t, []float64{0.75}, got[0].values)
}

func TestTickRespectsPollBudget(t *testing.T) {
	lb := network.NewLoopback()
	cfg := DefaultConfig()
	cfg.PollBudget = 3
	d, err := New(lb, cfg)
	require.NoError(t, err)
	defer d.Close()

	c := &recConsumer{name: "in"}
	h := bind(t, d, level, c, signal.Base())
	for i := 0; i < 9; i++ {
		lb.InjectValue(h, signal.Base(), signal.Float32s(float32(i)))
	}

	assert.Equal(t, 3, d.Tick())
	assert.Equal(t, 3, d.Tick())
	assert.Equal(t, 3, d.Tick())
	assert.Equal(t, 1, d.Tick())
	assert.Equal(t, 0, d.Tick())
	assert.Len(t, c.take(), 9)
}

func TestStartStop(t *testing.T) {
	lb := network.NewLoopback()
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	d, err := New(lb, cfg)
	require.NoError(t, err)

	c := &recConsumer{name: "in"}
	h := bind(t, d, level, c, signal.Base())
	lb.InjectValue(h, signal.Base(), signal.Float32s(1))

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.Running())

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.got) == 1
	}, time.Second, time.Millisecond)

	d.Stop()
	d.Stop()
	assert.False(t, d.Running())

	d.Close()
	d.Close()
	assert.True(t, d.Closed())
	assert.ErrorIs(t, d.Start(context.Background()), ErrClosed)
}

func TestCloseDestroysEverything(t *testing.T) {
	d, lb := newTestDevice(t)
	h := bind(t, d, slider, &recConsumer{name: "a"}, signal.Base())
	require.NoError(t, d.SetValue(h, signal.Base(), signal.Float32s(1)))

	d.Close()
	assert.Equal(t, signal.StateDestroyed, h.State())
	assert.Len(t, lb.TakeSent(), 1, "the open batch is flushed on close")

	_, err := d.Bind(slider, &recConsumer{name: "b"}, signal.Base())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.SetValue(h, signal.Base(), signal.Float32s(1)), ErrClosed)
	assert.Zero(t, d.Tick())
}

func TestDump(t *testing.T) {
	d, _ := newTestDevice(t)
	h := bind(t, d, touch(signal.StealOldest, 4), &recConsumer{name: "base"}, signal.Base())
	bind(t, d, touch(signal.StealOldest, 4), &recConsumer{name: "three"}, signal.Instance(3))
	bind(t, d, level, &recConsumer{name: "in"}, signal.Base())
	require.NoError(t, d.SetValue(h, signal.Instance(3), signal.Float32s(1)))

	dump := d.Dump()
	assert.Equal(t, "mapper", dump.Name)
	assert.Equal(t, 1, dump.Counts.Inputs)
	assert.Equal(t, 1, dump.Counts.Outputs)
	require.Len(t, dump.Signals, 2)

	var touchDump SignalDump
	for _, s := range dump.Signals {
		if s.Name == "touch" {
			touchDump = s
		}
	}
	assert.Equal(t, "oldest", touchDump.Steal)
	assert.Equal(t, []uint64{3}, touchDump.Active)
	require.Len(t, touchDump.Bindings, 2)
	assert.Equal(t, "base", touchDump.Bindings[0].Consumer)
	assert.Equal(t, "three", touchDump.Bindings[1].Consumer)

	data, err := json.Marshal(dump)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"maxInstances":4`)
}
