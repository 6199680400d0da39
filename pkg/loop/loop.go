package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Call when the loop is no longer running.
var ErrStopped = errors.New("loop stopped")

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Scheduler is the part of a loop that protocol components depend on.
type Scheduler interface {
	// Post queues fn to run on the loop.
	Post(fn func())

	// AfterFunc runs fn on the loop after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Executor is a Scheduler that can also run a closure and wait for it.
type Executor interface {
	Scheduler

	// Call runs fn on the loop and returns once it has completed.
	Call(fn func()) error
}

// Loop executes posted closures sequentially on a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	running bool
	stopped bool

	cancel context.CancelFunc
}

// New creates a loop. Call Start or Run to begin processing.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	if !l.claim() {
		cancel()
		return
	}
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	go l.run(ctx)
}

// Run processes posted closures until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	if !l.claim() {
		return
	}
	l.run(ctx)
}

func (l *Loop) claim() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.stopped {
		return false
	}
	l.running = true
	return true
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if stopped {
			return
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
			return
		case <-l.wake:
		}
	}
}

// Stop ends the loop after the closures already queued have run.
// It blocks until the loop goroutine has exited. Stop must not be called
// from the loop itself.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		running := l.running
		l.mu.Unlock()
		if running {
			<-l.done
		}
		return
	}
	l.stopped = true
	running := l.running
	cancel := l.cancel
	l.mu.Unlock()

	l.signal()
	if running {
		<-l.done
	}
	if cancel != nil {
		cancel()
	}
}

// Post queues fn to run on the loop. Closures posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Call runs fn on the loop and waits for it to complete.
// It must not be called from the loop goroutine.
func (l *Loop) Call(fn func()) error {
	l.mu.Lock()
	usable := l.running && !l.stopped
	l.mu.Unlock()
	if !usable {
		return ErrStopped
	}

	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-l.done:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// AfterFunc runs fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

type timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (t *timer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.t.Stop()
	return true
}

// Compile-time interface satisfaction checks.
var (
	_ Executor = (*Loop)(nil)
	_ Executor = (*Manual)(nil)
)
