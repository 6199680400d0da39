// Command kolibri-client connects to a Kolibri broker as a consumer,
// subscribes to data points and prints the values it receives.
//
// Usage:
//
//	kolibri-client [flags]
//
// Flags:
//
//	-config string        Broker configuration file (YAML)
//	-host string          Broker host name
//	-port int             Broker port
//	-project string       Project name (default: first label of the host)
//	-user string          User name
//	-password string      Password
//	-subscribe string     Comma separated paths to subscribe to
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a CBOR protocol trace to this file
//	-state string         Client id store (.db/.bolt for bbolt, otherwise JSON)
//	-interactive          Enable interactive command mode
//	-http string          Serve the HTTP API on this address, e.g. ":8080"
//	-version              Show version information
//
// Flags override values from the configuration file.
//
// Examples:
//
//	# Print every value of two data points
//	kolibri-client -host plant.example.com -user alice -password secret \
//	    -subscribe /line1/temp,/line1/pressure
//
//	# Interactive session with a protocol trace
//	kolibri-client -config broker.yaml -interactive -protocol-log session.klog
//
// Interactive Commands:
//
//	sub <path>           - Subscribe to a data point
//	unsub <path>         - Unsubscribe from a data point
//	write <path> <value> - Write a value
//	status               - Show session status
//	subs                 - List subscriptions
//	quit                 - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/kolibri-protocol/kolibri-go/cmd/kolibri-client/console"
	"github.com/kolibri-protocol/kolibri-go/pkg/broker"
	"github.com/kolibri-protocol/kolibri-go/pkg/httpapi"
	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/persistence"
	"github.com/kolibri-protocol/kolibri-go/pkg/version"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Options holds the command line flags.
type Options struct {
	ConfigFile  string
	Host        string
	Port        int
	Project     string
	User        string
	Password    string
	Subscribe   string
	LogLevel    string
	ProtocolLog string
	StateFile   string
	Interactive bool
	HTTPAddr    string
	ShowVersion bool

	// set records the flags given explicitly.
	set map[string]bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func parseFlags(args []string, errOut io.Writer) (*Options, error) {
	opts := &Options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("kolibri-client", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.ConfigFile, "config", "", "Broker configuration file (YAML)")
	fs.StringVar(&opts.Host, "host", "", "Broker host name")
	fs.IntVar(&opts.Port, "port", 0, "Broker port")
	fs.StringVar(&opts.Project, "project", "", "Project name (default: first label of the host)")
	fs.StringVar(&opts.User, "user", "", "User name")
	fs.StringVar(&opts.Password, "password", "", "Password")
	fs.StringVar(&opts.Subscribe, "subscribe", "", "Comma separated paths to subscribe to")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write a CBOR protocol trace to this file")
	fs.StringVar(&opts.StateFile, "state", "", "Client id store (.db/.bolt for bbolt, otherwise JSON)")
	fs.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
	fs.StringVar(&opts.HTTPAddr, "http", "", "Serve the HTTP API on this address, e.g. \":8080\"")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// brokerConfig loads the configuration file, if any, and applies the
// flags given on the command line before validating.
func brokerConfig(opts *Options) (broker.Config, error) {
	if opts.ConfigFile != "" {
		return broker.LoadConfig(opts.ConfigFile, opts.apply)
	}
	cfg := broker.DefaultConfig()
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return broker.Config{}, err
	}
	return cfg, nil
}

func (o *Options) apply(cfg *broker.Config) {
	if o.set["host"] {
		cfg.Host = o.Host
	}
	if o.set["port"] {
		cfg.Port = o.Port
	}
	if o.set["project"] {
		cfg.Project = o.Project
	}
	if o.set["user"] {
		cfg.User = o.User
	}
	if o.set["password"] {
		cfg.Password = o.Password
	}
	if o.set["protocol-log"] {
		cfg.TraceFile = o.ProtocolLog
	}
	if o.set["state"] {
		cfg.StateFile = o.StateFile
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q (use: debug, info, warn, error)", s)
	}
	return level, nil
}

func splitPaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// statusLogger is the client's listener on the session.
type statusLogger struct {
	logger *slog.Logger
}

func (statusLogger) ID() string   { return "kolibri-client" }
func (statusLogger) Path() string { return "" }

func (l statusLogger) SetStatus(st broker.Status) {
	level := slog.LevelInfo
	switch st.Level {
	case broker.LevelWarning:
		level = slog.LevelWarn
	case broker.LevelError:
		level = slog.LevelError
	}
	args := []any{"text", st.Text}
	if st.Path != "" {
		args = append(args, "path", st.Path)
	}
	l.logger.Log(context.Background(), level, "status", args...)
}

// pointPrinter writes received values to out.
type pointPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *pointPrinter) print(ps wire.PointState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, console.FormatPoint(ps))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.ShowVersion {
		fmt.Println(version.Banner("kolibri-client"))
		return 0
	}

	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	cfg, err := brokerConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printer := &pointPrinter{out: os.Stdout}
	var out io.Writer = os.Stderr

	var ic *console.Console
	if opts.Interactive {
		ic, err = console.New(printer.print)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		// Route output through readline to keep the prompt intact.
		out = ic.Stdout()
		printer.out = ic.Stdout()
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	cfg.Logger = logger

	logger.Info("Kolibri client", "version", version.Get().Version, "broker", cfg.URL(), "project", cfg.ProjectName(), "user", cfg.User)

	sessOpts := broker.Options{}

	var traces []log.Logger
	if cfg.TraceFile != "" {
		fl, err := log.NewFileLogger(cfg.TraceFile)
		if err != nil {
			logger.Error("failed to open protocol log", "file", cfg.TraceFile, "err", err)
			return 1
		}
		defer func() {
			if err := fl.Close(); err != nil {
				logger.Warn("failed to close protocol log", "file", fl.Path(), "err", err)
			}
			logger.Debug("protocol log closed", "file", fl.Path(), "events", fl.Written(), "dropped", fl.Dropped())
		}()
		traces = append(traces, fl)
		logger.Info("writing protocol log", "file", fl.Path())
	}
	if level <= slog.LevelDebug {
		traces = append(traces, log.NewSlogAdapter(logger))
	}
	if len(traces) > 0 {
		sessOpts.Trace = log.NewMultiLogger(traces...)
	}

	if cfg.StateFile != "" {
		store, err := persistence.Open(cfg.StateFile)
		if err != nil {
			logger.Error("failed to open state store", "file", cfg.StateFile, "err", err)
			return 1
		}
		defer store.Close()
		sessOpts.Store = store
	}

	session, err := broker.NewSession(cfg, sessOpts)
	if err != nil {
		logger.Error("failed to create session", "err", err)
		return 1
	}
	defer session.Close()

	for _, path := range splitPaths(opts.Subscribe) {
		if err := session.Subscribe(path, printer.print); err != nil {
			logger.Warn("subscribe failed", "path", path, "err", err)
		}
	}

	// Registering the first listener starts the connection.
	if err := session.Register(statusLogger{logger: logger}); err != nil {
		logger.Error("failed to start session", "err", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	if opts.HTTPAddr != "" {
		h := httpapi.NewHandler(session, httpapi.Options{
			Logger:  logger,
			OnPoint: printer.print,
			Version: version.Get().Version,
		})
		srv := httpapi.NewServer(opts.HTTPAddr, h)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("http api failed", "err", err)
				cancel()
			}
		}()
	}

	if ic != nil {
		ic.Attach(session)
		go ic.Run(ctx, cancel)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	wg.Wait()
	if err := session.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
	return 0
}
