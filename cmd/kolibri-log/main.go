// Command kolibri-log views and analyzes Kolibri protocol trace files.
//
// Trace files are written by kolibri-client with the -protocol-log flag
// (or the trace_file configuration setting).
//
// Usage:
//
//	kolibri-log <command> [flags] <file.klog>
//
// Commands:
//
//	view     View the trace in human-readable form
//	export   Export the trace as JSON lines or YAML
//	filter   Copy matching events to a new trace file
//	stats    Show statistics about the trace
//
// Examples:
//
//	# View inbound messages only
//	kolibri-log view -direction in session.klog
//
//	# View all kolibri.write traffic
//	kolibri-log view -method kolibri.write session.klog
//
//	# Export to YAML
//	kolibri-log export -format yaml session.klog
//
//	# Show statistics
//	kolibri-log stats session.klog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kolibri-protocol/kolibri-go/cmd/kolibri-log/commands"
	"github.com/kolibri-protocol/kolibri-go/pkg/version"
)

const usage = `kolibri-log - Kolibri Protocol Log Analyzer

Usage:
  kolibri-log <command> [flags] <file.klog>

Commands:
  view     View the trace in human-readable form
  export   Export the trace as JSON lines or YAML
  filter   Copy matching events to a new trace file
  stats    Show statistics about the trace
  version  Show version information

Use "kolibri-log <command> -help" for more information about a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	cmd, args := args[0], args[1:]
	var err error
	switch cmd {
	case "view":
		err = runView(args, stdout, stderr)
	case "export":
		err = runExport(args, stderr)
	case "filter":
		err = runFilter(args, stdout, stderr)
	case "stats":
		err = runStats(args, stdout, stderr)
	case "version", "-version":
		fmt.Fprintln(stdout, version.Banner("kolibri-log"))
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(stderr, usage)
		return 1
	}

	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newFlagSet(name, synopsis string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "kolibri-log %s - %s\n\nUsage:\n  kolibri-log %s [flags] <file.klog>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

// parseFile parses args and returns the single trace file argument.
func parseFile(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func viewFlags(fs *flag.FlagSet, opts *commands.ViewOptions) {
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
	fs.StringVar(&opts.Method, "method", "", "Filter by RPC method, e.g. kolibri.write")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
}

func runView(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("view", "View the trace in human-readable form", stderr)
	var opts commands.ViewOptions
	viewFlags(fs, &opts)

	path, err := parseFile(fs, args)
	if err != nil {
		return err
	}
	return commands.RunView(path, opts, stdout)
}

func runExport(args []string, stderr io.Writer) error {
	fs := newFlagSet("export", "Export the trace as JSON lines or YAML", stderr)
	format := fs.String("format", "jsonl", "Output format (jsonl, yaml)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, err := parseFile(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("filter", "Copy matching events to a new trace file", stderr)
	var opts commands.FilterOptions
	viewFlags(fs, &opts.ViewOptions)
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.Broker, "broker", "", "Filter by broker URL")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")

	path, err := parseFile(fs, args)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	return commands.RunFilter(path, opts, stdout)
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("stats", "Show statistics about the trace", stderr)
	path, err := parseFile(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, stdout)
}
