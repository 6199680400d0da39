package connection

import (
	"errors"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
)

// Retry errors.
var (
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrRetryPending     = errors.New("retry already pending")
)

// Unlimited disables the retry budget.
const Unlimited = -1

// RetrierConfig configures a Retrier.
type RetrierConfig struct {
	Backoff BackoffConfig

	// MaxRetries is the retry budget between successes.
	// Zero disables retries; Unlimited never runs out.
	MaxRetries int
}

// Retrier schedules budgeted retries with backoff on a loop.
//
// All methods must be called from the scheduler's loop.
type Retrier struct {
	sched   loop.Scheduler
	backoff *Backoff
	max     int

	attempts int
	timer    loop.Timer

	onRetry func(attempt int, delay time.Duration)
}

// NewRetrier creates a retrier that arms its timers on s.
func NewRetrier(s loop.Scheduler, cfg RetrierConfig) *Retrier {
	return &Retrier{
		sched:   s,
		backoff: NewBackoffWithConfig(cfg.Backoff),
		max:     cfg.MaxRetries,
	}
}

// OnRetry sets a callback invoked whenever a retry is scheduled.
func (r *Retrier) OnRetry(fn func(attempt int, delay time.Duration)) {
	r.onRetry = fn
}

// Schedule arms fn to run after the next backoff delay.
// It returns ErrRetriesExhausted when the budget is spent and
// ErrRetryPending when a retry is already armed.
func (r *Retrier) Schedule(fn func()) (time.Duration, error) {
	if r.timer != nil {
		return 0, ErrRetryPending
	}
	if r.Exhausted() {
		return 0, ErrRetriesExhausted
	}

	r.attempts++
	delay := r.backoff.Next()
	r.timer = r.sched.AfterFunc(delay, func() {
		r.timer = nil
		fn()
	})

	if r.onRetry != nil {
		r.onRetry(r.attempts, delay)
	}
	return delay, nil
}

// Cancel withdraws a pending retry. It reports whether one was pending.
func (r *Retrier) Cancel() bool {
	if r.timer == nil {
		return false
	}
	r.timer.Stop()
	r.timer = nil
	return true
}

// Reset cancels any pending retry and restores the full budget and the
// initial delay.
func (r *Retrier) Reset() {
	r.Cancel()
	r.attempts = 0
	r.backoff.Reset()
}

// Pending reports whether a retry is armed.
func (r *Retrier) Pending() bool {
	return r.timer != nil
}

// Attempts returns the number of retries scheduled since the last reset.
func (r *Retrier) Attempts() int {
	return r.attempts
}

// Exhausted reports whether no further retry may be scheduled.
func (r *Retrier) Exhausted() bool {
	return r.max >= 0 && r.attempts >= r.max
}

// Remaining returns the retries left, or Unlimited.
func (r *Retrier) Remaining() int {
	if r.max < 0 {
		return Unlimited
	}
	if n := r.max - r.attempts; n > 0 {
		return n
	}
	return 0
}

// NextDelay returns the delay the next retry would use.
func (r *Retrier) NextDelay() time.Duration {
	return r.backoff.Peek()
}
