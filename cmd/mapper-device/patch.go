package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/host"
	"github.com/libmapper/libmapper-max-sub000/pkg/lifecycle"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/network"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// PatchFile is the YAML patch definition.
//
//	name: synth
//	contexts: [main]
//	objects:
//	  - id: freq-out
//	    container: main/voice
//	    direction: output
//	    args: [freq, "@type", f]
//	routes:
//	  - context: main
//	    from: freq
//	    to: freq
type PatchFile struct {
	Name     string        `yaml:"name"`
	Contexts []string      `yaml:"contexts"`
	Objects  []ObjectEntry `yaml:"objects"`
	Routes   []RouteEntry  `yaml:"routes"`
}

// ObjectEntry places one signal object in the patch.
type ObjectEntry struct {
	ID        string   `yaml:"id"`
	Container string   `yaml:"container"`
	Direction string   `yaml:"direction"`
	Args      []string `yaml:"args"`
}

// RouteEntry connects an output signal to an input signal of one context.
type RouteEntry struct {
	Context string `yaml:"context"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
}

// LoadPatchFile reads and parses a patch definition.
func LoadPatchFile(path string) (*PatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	return ParsePatchFile(data)
}

// ParsePatchFile parses a patch definition.
func ParsePatchFile(data []byte) (*PatchFile, error) {
	var pf PatchFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	if pf.Name == "" {
		pf.Name = "patch"
	}
	seen := make(map[string]bool)
	for i, o := range pf.Objects {
		if o.ID == "" {
			return nil, fmt.Errorf("object %d: missing id", i)
		}
		if seen[o.ID] {
			return nil, fmt.Errorf("object %q: duplicate id", o.ID)
		}
		seen[o.ID] = true
		if _, err := signal.ParseDirection(o.Direction); err != nil {
			return nil, fmt.Errorf("object %q: %w", o.ID, err)
		}
	}
	return &pf, nil
}

// Patch is a running patch: a container tree, one device context per
// listed context container and the objects placed in it.
type Patch struct {
	root    *lifecycle.Node
	tracker *lifecycle.Tracker
	console logrus.FieldLogger
	events  log.Logger
	devCfg  device.Config

	mu        sync.Mutex
	nodes     map[string]*lifecycle.Node
	networks  map[*device.Device]*network.Loopback
	contexts  map[string]*lifecycle.Context
	objects   map[string]*host.Object
	onContext func(*lifecycle.Context)
}

// NewPatch creates an empty patch.
func NewPatch(name string, devCfg device.Config, events log.Logger, console logrus.FieldLogger) *Patch {
	p := &Patch{
		root:     lifecycle.NewNode(name),
		console:  console,
		events:   log.OrNoop(events),
		devCfg:   devCfg,
		nodes:    make(map[string]*lifecycle.Node),
		networks: make(map[*device.Device]*network.Loopback),
		contexts: make(map[string]*lifecycle.Context),
		objects:  make(map[string]*host.Object),
	}
	p.tracker = lifecycle.NewTracker(p.newDevice)
	p.tracker.SetLogger(p.events)
	p.tracker.OnContextDestroyed(func(ctx *lifecycle.Context) {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.networks, ctx.Device())
	})
	return p
}

// Load creates the contexts, objects and routes of a patch definition.
// Objects that fail to bind are reported on the console and skipped.
func (p *Patch) Load(pf *PatchFile) error {
	for _, path := range pf.Contexts {
		if _, err := p.AddContext(path); err != nil {
			return err
		}
	}
	for _, o := range pf.Objects {
		dir, _ := signal.ParseDirection(o.Direction)
		if _, err := p.AddObject(o.ID, o.Container, dir, o.Args); err != nil {
			p.console.WithField("id", o.ID).Warn("object skipped")
		}
	}
	for _, r := range pf.Routes {
		if err := p.Route(r.Context, r.From, r.To); err != nil {
			return err
		}
	}
	return nil
}

// OnContext sets a callback invoked for every context the patch creates.
func (p *Patch) OnContext(fn func(*lifecycle.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onContext = fn
}

func (p *Patch) newDevice(c lifecycle.Container) (*device.Device, error) {
	cfg := p.devCfg
	cfg.Name = fmt.Sprint(c)
	cfg.EventLogger = p.events

	net := network.NewLoopback()
	dev, err := device.New(net, cfg)
	if err != nil {
		return nil, err
	}
	net.SetLogger(p.events, dev.ID())

	p.mu.Lock()
	p.networks[dev] = net
	p.mu.Unlock()
	return dev, nil
}

// node returns the container at path, creating it and its ancestors.
func (p *Patch) node(path string) *lifecycle.Node {
	p.mu.Lock()
	defer p.mu.Unlock()

	path = strings.Trim(path, "/")
	if path == "" {
		return p.root
	}
	if n, ok := p.nodes[path]; ok {
		return n
	}
	parent := p.root
	parts := strings.Split(path, "/")
	for i, part := range parts {
		key := strings.Join(parts[:i+1], "/")
		n, ok := p.nodes[key]
		if !ok {
			n = parent.Add(part)
			p.nodes[key] = n
		}
		parent = n
	}
	return parent
}

// AddContext registers a device context at path.
func (p *Patch) AddContext(path string) (*lifecycle.Context, error) {
	ctx, err := p.tracker.RegisterContext(p.node(path))
	if err != nil {
		if msg := host.Diagnostic(err); msg != "" {
			p.console.WithField("container", path).Error(msg)
		}
		return nil, err
	}

	p.mu.Lock()
	p.contexts[strings.Trim(path, "/")] = ctx
	fn := p.onContext
	p.mu.Unlock()

	if fn != nil {
		fn(ctx)
	}
	return ctx, nil
}

// AddObject creates a signal object with id inside container.
func (p *Patch) AddObject(id, container string, dir signal.Direction, args []string) (*host.Object, error) {
	p.mu.Lock()
	_, exists := p.objects[id]
	p.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("object %q exists", id)
	}

	console := p.console.WithField("id", id)
	out := host.OutletFunc(func(msg string, atoms []signal.Atom) {
		console.WithFields(logrus.Fields{"msg": msg, "atoms": formatAtoms(atoms)}).Info("outlet")
	})
	obj, err := host.New(p.tracker, p.node(container), dir, args, out, console)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.objects[id] = obj
	p.mu.Unlock()
	return obj, nil
}

// Object returns the object with id.
func (p *Patch) Object(id string) (*host.Object, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.objects[id]
	return o, ok
}

// ObjectIDs returns the object ids in sorted order.
func (p *Patch) ObjectIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.objects))
	for id := range p.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FreeObject frees the object with id. The detach is applied on the next
// tick of its context.
func (p *Patch) FreeObject(id string) error {
	p.mu.Lock()
	o, ok := p.objects[id]
	delete(p.objects, id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no object %q", id)
	}
	o.Free()
	return nil
}

// Route connects output src to input dst on the network of the context
// at path.
func (p *Patch) Route(path, src, dst string) error {
	net, err := p.network(path)
	if err != nil {
		return err
	}
	net.Route(src, dst)
	return nil
}

// Unroute removes a route.
func (p *Patch) Unroute(path, src, dst string) error {
	net, err := p.network(path)
	if err != nil {
		return err
	}
	net.Unroute(src, dst)
	return nil
}

func (p *Patch) network(path string) (*network.Loopback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, ok := p.contexts[strings.Trim(path, "/")]
	if !ok {
		return nil, fmt.Errorf("%w: %q", lifecycle.ErrNoContext, path)
	}
	net, ok := p.networks[ctx.Device()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", lifecycle.ErrContextDestroyed, path)
	}
	return net, nil
}

// Devices returns the devices of all live contexts.
func (p *Patch) Devices() []*device.Device {
	ctxs := p.tracker.Contexts()
	devs := make([]*device.Device, 0, len(ctxs))
	for _, ctx := range ctxs {
		devs = append(devs, ctx.Device())
	}
	return devs
}

// ContextPaths returns the registered context paths in sorted order.
func (p *Patch) ContextPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.contexts))
	for path := range p.contexts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Teardown destroys the context at path.
func (p *Patch) Teardown(path string) error {
	path = strings.Trim(path, "/")
	p.mu.Lock()
	ctx, ok := p.contexts[path]
	delete(p.contexts, path)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", lifecycle.ErrNoContext, path)
	}
	return p.tracker.Teardown(ctx)
}

// Tick runs one cycle on every device and returns the total number of
// network polls.
func (p *Patch) Tick() int {
	n := 0
	for _, dev := range p.Devices() {
		n += dev.Tick()
	}
	return n
}

// Stop stops the background loop of every device.
func (p *Patch) Stop() {
	for _, dev := range p.Devices() {
		dev.Stop()
	}
}

// Close tears down every context.
func (p *Patch) Close() {
	p.tracker.Close()
	p.mu.Lock()
	p.contexts = make(map[string]*lifecycle.Context)
	p.mu.Unlock()
}

func formatAtoms(atoms []signal.Atom) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
