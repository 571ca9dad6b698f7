package device

import (
	"fmt"

	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
)

// Dump is a JSON-serializable snapshot of a device.
type Dump struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Counts  DumpCounts   `json:"counts"`
	Stats   Stats        `json:"stats"`
	Signals []SignalDump `json:"signals"`
}

// DumpCounts mirrors registry.Counts.
type DumpCounts struct {
	Inputs          int `json:"inputs"`
	Outputs         int `json:"outputs"`
	InputConsumers  int `json:"inputConsumers"`
	OutputConsumers int `json:"outputConsumers"`
}

// SignalDump describes one live signal.
type SignalDump struct {
	Name         string        `json:"name"`
	Direction    string        `json:"direction"`
	Type         string        `json:"type"`
	Length       int           `json:"length"`
	Ephemeral    bool          `json:"ephemeral,omitempty"`
	Steal        string        `json:"steal,omitempty"`
	MaxInstances int           `json:"maxInstances,omitempty"`
	State        string        `json:"state"`
	Active       []uint64      `json:"active,omitempty"`
	Bindings     []BindingDump `json:"bindings"`
}

// BindingDump describes one binding.
type BindingDump struct {
	ID       string `json:"id"`
	Slot     string `json:"slot"`
	Consumer string `json:"consumer"`
}

// Dump returns a snapshot of every live signal and its bindings.
func (d *Device) Dump() Dump {
	c := d.registry.Counts()
	out := Dump{
		ID:   d.ID(),
		Name: d.Name(),
		Counts: DumpCounts{
			Inputs:          c.Inputs,
			Outputs:         c.Outputs,
			InputConsumers:  c.InputConsumers,
			OutputConsumers: c.OutputConsumers,
		},
		Stats:   d.Stats(),
		Signals: []SignalDump{},
	}

	for _, h := range d.registry.Handles() {
		bindings, err := d.registry.Bindings(h)
		if err != nil {
			continue
		}
		sd := SignalDump{
			Name:      h.Name(),
			Direction: h.Direction().String(),
			Type:      h.Type().String(),
			Length:    h.Length(),
			State:     h.State().String(),
			Bindings:  make([]BindingDump, 0, len(bindings)),
		}
		if h.Ephemeral() {
			sd.Ephemeral = true
			sd.Steal = h.StealPolicy().String()
			sd.MaxInstances = h.MaxInstances()
			if t := d.router.Instances(h); t != nil {
				for _, e := range t.Entries() {
					sd.Active = append(sd.Active, uint64(e.ID))
				}
			}
		}
		for _, b := range bindings {
			sd.Bindings = append(sd.Bindings, BindingDump{
				ID:       b.ID(),
				Slot:     b.Slot().String(),
				Consumer: consumerName(b.Consumer()),
			})
		}
		out.Signals = append(out.Signals, sd)
	}
	return out
}

func consumerName(c registry.Consumer) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}
