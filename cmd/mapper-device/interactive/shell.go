// Package interactive provides the interactive command-line interface
// for mapper-device.
package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/host"
	"github.com/libmapper/libmapper-max-sub000/pkg/lifecycle"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// Patch is the part of a running patch the shell drives.
type Patch interface {
	AddContext(path string) (*lifecycle.Context, error)
	Teardown(path string) error
	ContextPaths() []string

	AddObject(id, container string, dir signal.Direction, args []string) (*host.Object, error)
	Object(id string) (*host.Object, bool)
	ObjectIDs() []string
	FreeObject(id string) error

	Route(path, src, dst string) error
	Unroute(path, src, dst string) error

	Devices() []*device.Device
	Tick() int
}

// Shell handles interactive mode for mapper-device.
type Shell struct {
	patch Patch
	save  func() error
	out   io.Writer
	rl    *readline.Instance
}

// New creates a shell reading from the terminal. save is called by the
// "save" command and may be nil.
func New(p Patch, save func() error) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mapper> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(p, save, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(p Patch, save func() error, out io.Writer) *Shell {
	return &Shell{patch: p, save: save, out: out}
}

// Stdout returns a writer that coordinates with the readline prompt.
func (s *Shell) Stdout() io.Writer { return s.out }

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if !s.Exec(line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the shell should exit.
func (s *Shell) Exec(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "contexts", "c":
		s.cmdContexts()
	case "context":
		s.cmdContext(args)
	case "teardown":
		s.cmdTeardown(args)
	case "objects", "ls":
		s.cmdObjects()
	case "new":
		s.cmdNew(args)
	case "send", "s":
		s.cmdSend(args)
	case "free":
		s.cmdFree(args)
	case "route":
		s.cmdRoute(args, true)
	case "unroute":
		s.cmdRoute(args, false)
	case "tick", "t":
		s.cmdTick(args)
	case "dump", "d":
		s.cmdDump()
	case "save":
		s.cmdSave()
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Mapper Device Commands:
  Contexts:
    contexts                      - List device contexts
    context <path>                - Create a device context at a container path
    teardown <path>               - Destroy a device context

  Objects:
    objects                       - List signal objects
    new <id> <container> <in|out> <name> [@prop value ...]
                                  - Create a signal object
    send <id> <msg> [atoms ...]   - Send a message (float, int, list, instance, release)
    free <id>                     - Free an object (applied on the next tick)

  Network:
    route <path> <src> <dst>      - Reflect output src into input dst
    unroute <path> <src> <dst>    - Remove a route
    tick [n]                      - Run n device cycles (default 1)

  State:
    dump                          - Print the property dump of every device
    save                          - Save a snapshot

  General:
    help                          - Show this help
    quit                          - Exit`)
}

func (s *Shell) cmdContexts() {
	paths := s.patch.ContextPaths()
	if len(paths) == 0 {
		fmt.Fprintln(s.out, "No device contexts.")
		return
	}
	for _, p := range paths {
		fmt.Fprintf(s.out, "  %s\n", p)
	}
}

func (s *Shell) cmdContext(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: context <path>")
		return
	}
	ctx, err := s.patch.AddContext(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Context %s (device %s)\n", args[0], ctx.Device().ID())
}

func (s *Shell) cmdTeardown(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: teardown <path>")
		return
	}
	if err := s.patch.Teardown(args[0]); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Context %s destroyed\n", args[0])
}

func (s *Shell) cmdObjects() {
	ids := s.patch.ObjectIDs()
	if len(ids) == 0 {
		fmt.Fprintln(s.out, "No objects.")
		return
	}
	for _, id := range ids {
		o, ok := s.patch.Object(id)
		if !ok {
			continue
		}
		h := o.Handle()
		if h == nil {
			fmt.Fprintf(s.out, "  %-12s (unbound)\n", id)
			continue
		}
		fmt.Fprintf(s.out, "  %-12s %s %s slot=%s state=%s\n", id, h.Direction(), h.Name(), o.Slot(), h.State())
	}
}

func (s *Shell) cmdNew(args []string) {
	if len(args) < 4 {
		fmt.Fprintln(s.out, "Usage: new <id> <container> <in|out> <name> [@prop value ...]")
		return
	}
	dir, err := signal.ParseDirection(args[2])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if _, err := s.patch.AddObject(args[0], args[1], dir, args[3:]); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Object %s created\n", args[0])
}

func (s *Shell) cmdSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: send <id> <msg> [atoms ...]")
		return
	}
	o, ok := s.patch.Object(args[0])
	if !ok {
		fmt.Fprintf(s.out, "No object %q\n", args[0])
		return
	}
	atoms, err := ParseAtoms(args[2:])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if err := o.HandleMessage(0, args[1], atoms); err != nil {
		if msg := host.Diagnostic(err); msg != "" {
			fmt.Fprintf(s.out, "Error: %s\n", msg)
		}
	}
}

func (s *Shell) cmdFree(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: free <id>")
		return
	}
	if err := s.patch.FreeObject(args[0]); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) cmdRoute(args []string, add bool) {
	if len(args) != 3 {
		fmt.Fprintln(s.out, "Usage: route|unroute <path> <src> <dst>")
		return
	}
	var err error
	if add {
		err = s.patch.Route(args[0], args[1], args[2])
	} else {
		err = s.patch.Unroute(args[0], args[1], args[2])
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) cmdTick(args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintf(s.out, "Invalid count: %s\n", args[0])
			return
		}
		n = v
	}
	polls := 0
	for range n {
		polls += s.patch.Tick()
	}
	fmt.Fprintf(s.out, "%d tick(s), %d poll(s)\n", n, polls)
}

func (s *Shell) cmdDump() {
	devs := s.patch.Devices()
	dumps := make([]device.Dump, 0, len(devs))
	for _, d := range devs {
		dumps = append(dumps, d.Dump())
	}
	data, err := json.MarshalIndent(dumps, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, string(data))
}

func (s *Shell) cmdSave() {
	if s.save == nil {
		fmt.Fprintln(s.out, "No state file configured.")
		return
	}
	if err := s.save(); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "Saved.")
}

// ParseAtoms converts words to atoms. Words that parse as integers become
// int atoms, other numbers float atoms.
func ParseAtoms(words []string) ([]signal.Atom, error) {
	atoms := make([]signal.Atom, 0, len(words))
	for _, w := range words {
		if i, err := strconv.ParseInt(w, 10, 64); err == nil {
			atoms = append(atoms, signal.IntAtom(i))
			continue
		}
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", w)
		}
		atoms = append(atoms, signal.FloatAtom(f))
	}
	return atoms, nil
}
