// Command mapper-log views and analyzes event trace files written by
// mapper-device --event-log.
//
// Usage:
//
//	mapper-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View events in human-readable format
//	export   Export events to JSONL or CSV
//	filter   Copy matching events to a new trace file
//	stats    Show statistics about the trace
//
// Examples:
//
//	# View instance activity of one signal
//	mapper-log view --category instance --signal gate synth.cbor
//
//	# Export router events as CSV
//	mapper-log export --format csv --layer router synth.cbor
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/libmapper/libmapper-max-sub000/cmd/mapper-log/commands"
)

const usage = `mapper-log - Mapper Event Log Analyzer

Usage:
  mapper-log <command> [flags] <file.cbor>

Commands:
  view     View events in human-readable format
  export   Export events to JSONL or CSV
  filter   Copy matching events to a new trace file
  stats    Show statistics about the trace

Use "mapper-log <command> --help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet creates a flag set with the shared filter flags bound to opts.
func newFlagSet(name, synopsis string, opts *commands.FilterOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "mapper-log %s - %s\n\nUsage:\n  mapper-log %s [flags] <file.cbor>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	if opts != nil {
		fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by device id")
		fs.StringVar(&opts.Signal, "signal", "", "Filter by signal name")
		fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (registry, router, lifecycle, network, host)")
		fs.StringVar(&opts.Category, "category", "", "Filter by category (binding, value, instance, state, error)")
		fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
		fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	}
	return fs
}

func pathArg(fs *pflag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	var opts commands.FilterOptions
	fs := newFlagSet("view", "View events in human-readable format", &opts)
	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	var opts commands.FilterOptions
	fs := newFlagSet("export", "Export events to JSONL or CSV", &opts)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.StringP("output", "o", "", "Output file (default: stdout)")
	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return commands.RunExport(path, filter, *format, w)
}

func runFilter(args []string) error {
	var opts commands.FilterOptions
	fs := newFlagSet("filter", "Copy matching events to a new trace file", &opts)
	output := fs.StringP("output", "o", "", "Output file (required)")
	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	n, err := commands.RunFilter(path, filter, *output)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the trace", nil)
	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
