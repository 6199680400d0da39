package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
)

type readItem struct {
	binary bool
	data   []byte
	err    error
}

// fakeChannel is an in-memory Channel driven by the test.
type fakeChannel struct {
	reads chan readItem
	done  chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closeCode int
	closed    bool
	writeErr  error
	echoClose bool
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{reads: make(chan readItem, 16), done: make(chan struct{})}
}

func (c *fakeChannel) ReadMessage() (bool, []byte, error) {
	select {
	case it := <-c.reads:
		return it.binary, it.data, it.err
	case <-c.done:
		return false, nil, &CloseError{Code: 1006}
	}
}

func (c *fakeChannel) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) WriteClose(code int, _ string) error {
	c.mu.Lock()
	c.closeCode = code
	echo := c.echoClose
	c.mu.Unlock()
	if echo {
		c.reads <- readItem{err: &CloseError{Code: code}}
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeChannel) RemoteAddr() string { return "fake:9000" }

func (c *fakeChannel) text(s string)   { c.reads <- readItem{data: []byte(s)} }
func (c *fakeChannel) binary(b []byte) { c.reads <- readItem{binary: true, data: b} }
func (c *fakeChannel) peerClose(code int) {
	c.reads <- readItem{err: &CloseError{Code: code}}
}

func (c *fakeChannel) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out queued results; when the queue is empty it fails.
type fakeDialer struct {
	mu        sync.Mutex
	results   []dialResult
	dials     int
	onControl func(ControlType)
	block     chan struct{}
}

type dialResult struct {
	ch  *fakeChannel
	err error
}

func (d *fakeDialer) queue(results ...dialResult) {
	d.mu.Lock()
	d.results = append(d.results, results...)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, onControl func(ControlType)) (Channel, error) {
	d.mu.Lock()
	d.dials++
	d.onControl = onControl
	block := d.block
	var r dialResult
	if len(d.results) > 0 {
		r = d.results[0]
		d.results = d.results[1:]
	} else {
		r.err = errors.New("connection refused")
	}
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.ch, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) control(t ControlType) {
	d.mu.Lock()
	fn := d.onControl
	d.mu.Unlock()
	fn(t)
}

// recordingHandler records session events. Used on the loop only.
type recordingHandler struct {
	opens    int
	closes   []int
	errs     []error
	messages []string

	onClose func(code int)
}

func (h *recordingHandler) OnOpen()           { h.opens++ }
func (h *recordingHandler) OnError(err error) { h.errs = append(h.errs, err) }
func (h *recordingHandler) OnMessage(data []byte) {
	h.messages = append(h.messages, string(data))
}
func (h *recordingHandler) OnClose(code int) {
	h.closes = append(h.closes, code)
	if h.onClose != nil {
		h.onClose(code)
	}
}

// settle drains m until cond holds, giving dial and read goroutines time
// to post their results.
func settle(t *testing.T, m *loop.Manual, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.Drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}
