package discovery

import (
	"errors"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of a device.
	ServiceType = "_mapper._udp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the advertised port when none is configured.
	DefaultPort = 7570

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// TXTVersion is the current TXT record format version.
	TXTVersion = 1

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// TXT record keys.
const (
	TXTKeyID      = "id"
	TXTKeyInputs  = "in"
	TXTKeyOutputs = "out"
	TXTKeyVersion = "ver"
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidTXT          = errors.New("invalid TXT field")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrAlreadyAdvertising  = errors.New("already advertising")
)

// DeviceInfo is what gets advertised for one device.
type DeviceInfo struct {
	// Name is the instance name.
	Name string

	// ID is the device context id.
	ID string

	// Port is the advertised port. Zero means DefaultPort.
	Port uint16

	Inputs  int
	Outputs int
}
