package host

import (
	"errors"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/lifecycle"
	"github.com/libmapper/libmapper-max-sub000/pkg/registry"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Diagnostic returns the console text for err, or "" for errors that stay
// silent.
func Diagnostic(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrClosed),
		errors.Is(err, device.ErrClosed),
		errors.Is(err, lifecycle.ErrContextDestroyed):
		return ""
	case errors.Is(err, registry.ErrSignalTypeConflict):
		return "signal type conflict: " + err.Error()
	case errors.Is(err, lifecycle.ErrNestedContextConflict):
		return "only one device context is allowed per patch hierarchy: " + err.Error()
	case errors.Is(err, lifecycle.ErrNoContext):
		return "no device context in this patch"
	case errors.Is(err, signal.ErrIllegalValueShape):
		return "wrong number of values: " + err.Error()
	case errors.Is(err, signal.ErrInvalidSpec):
		return "bad arguments: " + err.Error()
	case errors.Is(err, registry.ErrBindingNotFound):
		return "not bound: " + err.Error()
	default:
		return err.Error()
	}
}
