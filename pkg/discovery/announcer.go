package discovery

import (
	"context"
	"sync"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
)

// Announcer advertises one device and refreshes its TXT record whenever
// the device reports a change.
type Announcer struct {
	adv  Advertiser
	dev  *device.Device
	port uint16

	mu       sync.Mutex
	active   bool
	observed bool
	updates  int
	lastErr  error
}

// NewAnnouncer creates an announcer for dev on adv.
func NewAnnouncer(adv Advertiser, dev *device.Device, port uint16) *Announcer {
	return &Announcer{adv: adv, dev: dev, port: port}
}

// Info returns the record that would be advertised now.
func (a *Announcer) Info() DeviceInfo {
	c := a.dev.Counts()
	return DeviceInfo{
		Name:    a.dev.Name(),
		ID:      a.dev.ID(),
		Port:    a.port,
		Inputs:  c.Inputs,
		Outputs: c.Outputs,
	}
}

// Start begins advertising. It returns ErrAlreadyAdvertising if called
// twice without Stop.
func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		return ErrAlreadyAdvertising
	}
	info := a.Info()
	if err := a.adv.Advertise(ctx, &info); err != nil {
		return err
	}
	a.active = true

	if !a.observed {
		a.observed = true
		a.dev.OnReport(a.handleReport)
	}
	return nil
}

func (a *Announcer) handleReport(r device.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}
	info := a.Info()
	info.Inputs, info.Outputs = r.Counts.Inputs, r.Counts.Outputs
	a.lastErr = a.adv.Update(&info)
	a.updates++
}

// Stop withdraws the advertisement.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return nil
	}
	a.active = false
	return a.adv.Stop(a.dev.ID())
}

// Updates returns the number of TXT refreshes and the last refresh error.
func (a *Announcer) Updates() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updates, a.lastErr
}
