package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/network"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

type fakeAdvertiser struct {
	mu      sync.Mutex
	records map[string][]string
	fail    error
}

func newFakeAdvertiser() *fakeAdvertiser {
	return &fakeAdvertiser{records: make(map[string][]string)}
}

func (f *fakeAdvertiser) Advertise(_ context.Context, info *DeviceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.records[info.ID] = TXTRecordsToStrings(EncodeTXT(info))
	return nil
}

func (f *fakeAdvertiser) Update(info *DeviceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[info.ID]; !ok {
		return ErrNotFound
	}
	f.records[info.ID] = TXTRecordsToStrings(EncodeTXT(info))
	return nil
}

func (f *fakeAdvertiser) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeAdvertiser) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = make(map[string][]string)
}

func (f *fakeAdvertiser) txt(id string) TXTRecordMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil
	}
	return StringsToTXTRecords(r)
}

type nopConsumer struct{}

func (*nopConsumer) DeliverValue(*signal.Handle, signal.Slot, signal.Values) {}
func (*nopConsumer) DeliverEvent(*signal.Handle, signal.Event) {}

func TestTXTRoundTrip(t *testing.T) {
	info := &DeviceInfo{ID: "abc", Inputs: 3, Outputs: 1}
	strs := TXTRecordsToStrings(EncodeTXT(info))
	assert.Equal(t, []string{"id=abc", "in=3", "out=1", "ver=1"}, strs)

	got, err := DecodeTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{name: "missing id", txt: TXTRecordMap{"in": "1", "out": "1"}, want: ErrMissingRequired},
		{name: "missing in", txt: TXTRecordMap{"id": "a", "out": "1"}, want: ErrMissingRequired},
		{name: "bad out", txt: TXTRecordMap{"id": "a", "in": "1", "out": "x"}, want: ErrInvalidTXT},
		{name: "negative", txt: TXTRecordMap{"id": "a", "in": "-1", "out": "0"}, want: ErrInvalidTXT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStringsToTXTRecordsFlag(t *testing.T) {
	txt := StringsToTXTRecords([]string{"flag", "k=v=w", ""})
	assert.Equal(t, TXTRecordMap{"flag": "", "k": "v=w"}, txt)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("mapper"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("a", MaxInstanceNameLen+1)), ErrInstanceNameTooLong)
}

func TestAnnouncerTracksCounts(t *testing.T) {
	d, err := device.New(network.NewLoopback(), device.DefaultConfig())
	require.NoError(t, err)
	defer d.Close()

	adv := newFakeAdvertiser()
	a := NewAnnouncer(adv, d, 9000)
	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyAdvertising)
	assert.Equal(t, "0", adv.txt(d.ID())[TXTKeyInputs])

	c := &nopConsumer{}
	_, err = d.Bind(signal.Spec{Name: "in", Direction: signal.DirectionInput, Type: signal.TypeFloat32, Length: 1}, c, signal.Base())
	require.NoError(t, err)
	_, err = d.Bind(signal.Spec{Name: "out", Direction: signal.DirectionOutput, Type: signal.TypeInt32, Length: 2}, c, signal.Base())
	require.NoError(t, err)

	txt := adv.txt(d.ID())
	assert.Equal(t, "1", txt[TXTKeyInputs])
	assert.Equal(t, "1", txt[TXTKeyOutputs])

	d.Unbind(c, "in")
	assert.Equal(t, "0", adv.txt(d.ID())[TXTKeyInputs])

	n, lastErr := a.Updates()
	assert.Equal(t, 3, n)
	assert.NoError(t, lastErr)

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	assert.Nil(t, adv.txt(d.ID()))

	// Reports after Stop are ignored.
	d.Unbind(c)
	n, _ = a.Updates()
	assert.Equal(t, 3, n)
}

func TestAnnouncerStartError(t *testing.T) {
	d, err := device.New(network.NewLoopback(), device.DefaultConfig())
	require.NoError(t, err)
	defer d.Close()

	adv := newFakeAdvertiser()
	adv.fail = errors.New("no multicast")
	a := NewAnnouncer(adv, d, 0)
	assert.Error(t, a.Start(context.Background()))

	adv.fail = nil
	assert.NoError(t, a.Start(context.Background()))
}

func TestMDNSAdvertiserCreate(t *testing.T) {
	adv, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	require.NoError(t, err)
	defer adv.StopAll()

	assert.ErrorIs(t, adv.Update(&DeviceInfo{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, adv.Stop("missing"), ErrNotFound)
	assert.ErrorIs(t, adv.Advertise(context.Background(), &DeviceInfo{ID: "x"}), ErrInstanceNameTooLong)
}

func TestMDNSAdvertiserLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("registers a real mDNS service")
	}
	adv, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	require.NoError(t, err)
	defer adv.StopAll()

	info := &DeviceInfo{Name: "mapper-test", ID: "dev-1", Inputs: 1}
	if err := adv.Advertise(context.Background(), info); err != nil {
		t.Skipf("mDNS unavailable: %v", err)
	}
	info.Outputs = 2
	assert.NoError(t, adv.Update(info))
	assert.NoError(t, adv.Stop("dev-1"))
}
