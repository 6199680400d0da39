package transport

import (
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
)

// Keep-alive defaults, matching the login parameters sent to the broker.
const (
	// DefaultKeepAliveInterval is the broker ping interval.
	DefaultKeepAliveInterval = 60 * time.Second

	// DefaultKeepAliveTimeout is how long the broker waits for a pong.
	DefaultKeepAliveTimeout = 30 * time.Second

	// KeepAliveMargin is added to interval + timeout before giving up.
	KeepAliveMargin = 2 * time.Second
)

// KeepAliveConfig configures the keepalive watchdog.
type KeepAliveConfig struct {
	// Interval is the broker ping interval. Zero disables the watchdog.
	Interval time.Duration

	// Timeout is the broker pong timeout.
	Timeout time.Duration

	// Margin is the extra slack (default: KeepAliveMargin).
	Margin time.Duration
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval: DefaultKeepAliveInterval,
		Timeout:  DefaultKeepAliveTimeout,
		Margin:   KeepAliveMargin,
	}
}

// DetectionDelay is the silence after which a connection is considered
// dead, or 0 when keepalive is disabled.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	if c.Interval <= 0 {
		return 0
	}
	margin := c.Margin
	if margin <= 0 {
		margin = KeepAliveMargin
	}
	return c.Interval + c.Timeout + margin
}

// Watchdog fires onExpire when it is not fed within the detection delay.
// All methods must be called on the scheduler's loop.
type Watchdog struct {
	sched    loop.Scheduler
	delay    time.Duration
	onExpire func()

	timer   loop.Timer
	running bool
	expired int
}

// NewWatchdog creates a stopped watchdog.
func NewWatchdog(sched loop.Scheduler, cfg KeepAliveConfig, onExpire func()) *Watchdog {
	return &Watchdog{
		sched:    sched,
		delay:    cfg.DetectionDelay(),
		onExpire: onExpire,
	}
}

// Start arms the watchdog. It does nothing when keepalive is disabled.
func (w *Watchdog) Start() {
	if w.delay <= 0 {
		return
	}
	w.running = true
	w.arm()
}

// Feed restarts the countdown. It does nothing when stopped.
func (w *Watchdog) Feed() {
	if !w.running {
		return
	}
	w.arm()
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Running reports whether the watchdog is armed.
func (w *Watchdog) Running() bool {
	return w.running
}

// Expirations returns how often the watchdog has fired.
func (w *Watchdog) Expirations() int {
	return w.expired
}

func (w *Watchdog) arm() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.sched.AfterFunc(w.delay, func() {
		w.timer = nil
		w.running = false
		w.expired++
		if w.onExpire != nil {
			w.onExpire()
		}
	})
}
