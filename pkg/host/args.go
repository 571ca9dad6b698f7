package host

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Args is a parsed object argument list.
type Args struct {
	Spec signal.Spec
	Slot signal.Slot
}

// ParseArgs parses a host argument list for a signal object of direction
// dir. The first argument is the signal name; the rest are @property value
// pairs:
//
//	@type i|f   @length n   @ephemeral 0|1   @steal none|oldest|newest
//	@instances n   @instance id
//
// Type defaults to float32 and length to 1.
func ParseArgs(dir signal.Direction, args []string) (Args, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "@") {
		return Args{}, fmt.Errorf("%w: missing signal name", signal.ErrInvalidSpec)
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	typ := fs.String("type", "f", "element type")
	length := fs.Int("length", 1, "vector length")
	ephemeral := fs.Int("ephemeral", 0, "dynamic instances")
	steal := fs.String("steal", "none", "steal policy")
	instances := fs.Int("instances", 0, "instance capacity")
	inst := fs.Int64("instance", -1, "bound instance id")

	flags := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "@") {
			a = "--" + a[1:]
		}
		flags = append(flags, a)
	}
	if err := fs.Parse(flags); err != nil {
		return Args{}, fmt.Errorf("%w: %v", signal.ErrInvalidSpec, err)
	}
	if fs.NArg() > 0 {
		return Args{}, fmt.Errorf("%w: unexpected argument %q", signal.ErrInvalidSpec, fs.Arg(0))
	}

	t, err := signal.ParseType(*typ)
	if err != nil {
		return Args{}, err
	}
	policy, err := signal.ParseStealPolicy(*steal)
	if err != nil {
		return Args{}, err
	}

	out := Args{
		Spec: signal.Spec{
			Name:         args[0],
			Direction:    dir,
			Type:         t,
			Length:       *length,
			Ephemeral:    *ephemeral != 0,
			Steal:        policy,
			MaxInstances: *instances,
		},
		Slot: signal.Base(),
	}
	if *inst >= 0 {
		out.Slot = signal.Instance(signal.InstanceID(*inst))
	}
	if err := out.Spec.Validate(); err != nil {
		return Args{}, err
	}
	return out, nil
}
