// Command mapper-device runs a patch of signal objects against in-memory
// loopback networks.
//
// It demonstrates the binding registry end to end:
//   - YAML patch definitions (contexts, objects, routes)
//   - one device context per context container
//   - background tick loops with bounded polling
//   - CBOR event traces and JSON snapshots
//   - mDNS advertisement of each device context
//   - an interactive shell
//
// Usage:
//
//	mapper-device [flags]
//
// Examples:
//
//	# Run a patch with an interactive shell
//	mapper-device --patch synth.yaml --interactive
//
//	# Trace events and save a snapshot on exit
//	mapper-device --patch synth.yaml --event-log synth.cbor --state synth.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/libmapper/libmapper-max-sub000/cmd/mapper-device/interactive"
	"github.com/libmapper/libmapper-max-sub000/pkg/device"
	"github.com/libmapper/libmapper-max-sub000/pkg/discovery"
	"github.com/libmapper/libmapper-max-sub000/pkg/lifecycle"
	"github.com/libmapper/libmapper-max-sub000/pkg/log"
	"github.com/libmapper/libmapper-max-sub000/pkg/persistence"
)

// Config holds the command configuration.
type Config struct {
	PatchFile   string
	LogLevel    string
	LogBackend  string
	EventLog    string
	StateFile   string
	Interactive bool

	TickInterval time.Duration
	PollBudget   int

	Announce  bool
	Port      uint16
	Interface string
}

var config Config

func init() {
	pflag.StringVar(&config.PatchFile, "patch", "", "YAML patch definition")
	pflag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pflag.StringVar(&config.LogBackend, "log-backend", "slog", "Event log backend: slog, logrus")
	pflag.StringVar(&config.EventLog, "event-log", "", "Append CBOR-encoded events to this file")
	pflag.StringVar(&config.StateFile, "state", "", "Save a JSON snapshot to this file on exit")
	pflag.BoolVarP(&config.Interactive, "interactive", "i", false, "Start the interactive shell")
	pflag.DurationVar(&config.TickInterval, "tick", device.DefaultTickInterval, "Device tick interval")
	pflag.IntVar(&config.PollBudget, "poll-budget", device.DefaultPollBudget, "Network polls per tick")
	pflag.BoolVar(&config.Announce, "announce", false, "Advertise device contexts via mDNS")
	pflag.Uint16Var(&config.Port, "port", discovery.DefaultPort, "Advertised port")
	pflag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS (default all)")
}

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mapper-device: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)})))

	console := logrus.New()
	console.SetLevel(level)

	events, closeEvents, err := eventLogger(console)
	if err != nil {
		return err
	}
	defer closeEvents()

	pf := &PatchFile{Name: "patch"}
	if config.PatchFile != "" {
		if pf, err = LoadPatchFile(config.PatchFile); err != nil {
			return err
		}
	}

	devCfg := device.DefaultConfig()
	devCfg.TickInterval = config.TickInterval
	devCfg.PollBudget = config.PollBudget

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var adv *discovery.MDNSAdvertiser
	if config.Announce {
		advCfg := discovery.DefaultAdvertiserConfig()
		advCfg.Interface = config.Interface
		if adv, err = discovery.NewMDNSAdvertiser(advCfg); err != nil {
			return err
		}
		defer adv.StopAll()
	}

	p := NewPatch(pf.Name, devCfg, events, console)
	p.OnContext(func(lc *lifecycle.Context) {
		dev := lc.Device()
		slog.Info("device context", "name", dev.Name(), "id", dev.ID())
		if err := dev.Start(ctx); err != nil {
			slog.Warn("device start failed", "name", dev.Name(), "error", err)
		}
		if adv != nil {
			a := discovery.NewAnnouncer(adv, dev, config.Port)
			if err := a.Start(ctx); err != nil {
				slog.Warn("announce failed", "name", dev.Name(), "error", err)
			}
		}
	})
	if err := p.Load(pf); err != nil {
		p.Close()
		return err
	}
	defer p.Close()

	var save func() error
	if config.StateFile != "" {
		store := persistence.NewSnapshotStore(config.StateFile)
		save = func() error {
			_, err := store.Capture(p.Devices()...)
			return err
		}
		defer func() {
			if err := save(); err != nil {
				slog.Error("saving snapshot", "path", config.StateFile, "error", err)
			}
		}()
	}

	slog.Info("patch running", "name", pf.Name, "contexts", strings.Join(p.ContextPaths(), ","), "objects", len(p.ObjectIDs()))

	if config.Interactive {
		sh, err := interactive.New(p, save)
		if err != nil {
			return err
		}
		console.SetOutput(sh.Stdout())
		go sh.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	p.Stop()
	return nil
}

// eventLogger builds the event logger from the flags. The returned func
// closes the trace file, if any.
func eventLogger(console *logrus.Logger) (log.Logger, func(), error) {
	var backend log.Logger
	switch config.LogBackend {
	case "slog":
		backend = log.NewSlogAdapter(slog.Default())
	case "logrus":
		backend = log.NewLogrusAdapter(console)
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", config.LogBackend)
	}

	if config.EventLog == "" {
		return backend, func() {}, nil
	}
	fl, err := log.NewFileLogger(config.EventLog)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	closeFn := func() {
		if n := fl.Dropped(); n > 0 {
			slog.Warn("event log dropped events", "count", n)
		}
		_ = fl.Close()
	}
	return log.NewMultiLogger(backend, fl), closeFn, nil
}

func slogLevel(l logrus.Level) slog.Level {
	switch {
	case l >= logrus.DebugLevel:
		return slog.LevelDebug
	case l == logrus.InfoLevel:
		return slog.LevelInfo
	case l == logrus.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
