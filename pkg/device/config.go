package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/log"
)

// Default runtime settings.
const (
	DefaultPollBudget   = 8
	DefaultTickInterval = 10 * time.Millisecond
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("invalid device config")

// Config configures a Device.
type Config struct {
	// Name is the device name reported in dumps and announcements.
	Name string

	// PollBudget is the maximum number of network polls per tick.
	PollBudget int

	// TickInterval is the period of the background loop started by Start.
	TickInterval time.Duration

	// EventLogger receives binding and dispatch events. Nil disables them.
	EventLogger log.Logger

	// Clock is the time source for batch and instance timestamps.
	// Nil means time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Name:         "mapper",
		PollBudget:   DefaultPollBudget,
		TickInterval: DefaultTickInterval,
	}
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidConfig)
	}
	if c.PollBudget <= 0 {
		c.PollBudget = DefaultPollBudget
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	c.EventLogger = log.OrNoop(c.EventLogger)
	return nil
}
