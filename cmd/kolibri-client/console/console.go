// Package console provides the interactive command-line interface of
// kolibri-client.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/kolibri-protocol/kolibri-go/pkg/broker"
	"github.com/kolibri-protocol/kolibri-go/pkg/subscription"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Session is the part of a broker session the console drives.
type Session interface {
	State() broker.State
	Status() broker.Status
	ClientID() string
	Pending() int
	Subscriptions() []subscription.Info
	Subscribe(path string, h subscription.Handler) error
	Unsubscribe(path string) error
	Write(p wire.PointState) error
}

// Console reads commands from a readline prompt and applies them to a
// session.
type Console struct {
	session Session
	onPoint subscription.Handler
	out     io.Writer
	now     func() time.Time
	rl      *readline.Instance
}

// New creates a console. Points received for paths subscribed from the
// console are passed to onPoint. The console is created before the
// session so that logs can be routed through Stdout; call Attach before
// Run.
func New(onPoint subscription.Handler) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kolibri> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(nil, onPoint, rl.Stdout())
	c.rl = rl
	return c, nil
}

// Attach sets the session the commands apply to.
func (c *Console) Attach(s Session) {
	c.session = s
}

func newConsole(s Session, onPoint subscription.Handler, out io.Writer) *Console {
	if onPoint == nil {
		onPoint = func(wire.PointState) {}
	}
	return &Console{session: s, onPoint: onPoint, out: out, now: time.Now}
}

// Stdout returns a writer that does not disturb the prompt. Use it for
// log output while the console runs.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads commands until quit, EOF or ctx is done. cancel is called
// when the user quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Execute(line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to
// quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "sub", "subscribe":
		c.cmdSubscribe(args)
	case "unsub", "unsubscribe":
		c.cmdUnsubscribe(args)
	case "write", "w":
		c.cmdWrite(args)
	case "status":
		c.cmdStatus()
	case "subs", "ls":
		c.cmdSubscriptions()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Kolibri Client Commands:
  sub <path> [path...]   - Subscribe to data points
  unsub <path> [path...] - Unsubscribe from data points
  write <path> <value>   - Write a value (JSON literal or plain text)
  status                 - Show session status
  subs                   - List subscriptions and last values
  help                   - Show this help
  quit                   - Exit`)
}

func (c *Console) cmdSubscribe(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: sub <path> [path...]")
		return
	}
	for _, path := range args {
		if err := c.session.Subscribe(path, c.onPoint); err != nil {
			fmt.Fprintf(c.out, "Subscribe %s failed: %v\n", path, err)
			continue
		}
		fmt.Fprintf(c.out, "Subscribed %s\n", path)
	}
}

func (c *Console) cmdUnsubscribe(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: unsub <path> [path...]")
		return
	}
	for _, path := range args {
		if err := c.session.Unsubscribe(path); err != nil {
			fmt.Fprintf(c.out, "Unsubscribe %s failed: %v\n", path, err)
			continue
		}
		fmt.Fprintf(c.out, "Unsubscribed %s\n", path)
	}
}

func (c *Console) cmdWrite(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: write <path> <value>")
		return
	}
	p := wire.NewPointState(args[0], ParseValue(strings.Join(args[1:], " ")), c.now())
	if err := c.session.Write(p); err != nil {
		fmt.Fprintf(c.out, "Write %s failed: %v\n", p.Path, err)
		return
	}
	fmt.Fprintf(c.out, "Wrote %s\n", FormatPoint(p))
}

func (c *Console) cmdStatus() {
	fmt.Fprintln(c.out, "\nSession Status:")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  State:         %s\n", c.session.State())
	fmt.Fprintf(c.out, "  Status:        %s\n", c.session.Status())
	if id := c.session.ClientID(); id != "" {
		fmt.Fprintf(c.out, "  Client ID:     %s\n", id)
	}
	fmt.Fprintf(c.out, "  Pending:       %d\n", c.session.Pending())
	fmt.Fprintf(c.out, "  Subscriptions: %d\n", len(c.session.Subscriptions()))
}

func (c *Console) cmdSubscriptions() {
	infos := c.session.Subscriptions()
	if len(infos) == 0 {
		fmt.Fprintln(c.out, "No subscriptions")
		return
	}
	fmt.Fprintf(c.out, "\nSubscriptions (%d):\n", len(infos))
	for _, info := range infos {
		state := "pending"
		switch {
		case !info.Want:
			state = "removing"
		case info.Subscribed:
			state = "active"
		}
		fmt.Fprintf(c.out, "  %-30s %-8s updates=%d", info.Path, state, info.Updates)
		if info.Last != nil {
			fmt.Fprintf(c.out, " last=%s", formatValue(info.Last.Value))
		}
		fmt.Fprintln(c.out)
	}
}

// ParseValue interprets s as a JSON literal such as 21.5, true or
// {"a":1}. Anything that is not valid JSON is taken as a string.
func ParseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// FormatPoint renders a point for display.
func FormatPoint(p wire.PointState) string {
	ts := time.UnixMilli(p.Timestamp).Format("15:04:05.000")
	return fmt.Sprintf("%s = %s (quality %d, %s)", p.Path, formatValue(p.Value), p.Quality, ts)
}

func formatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
