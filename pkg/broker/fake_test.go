package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
	"github.com/kolibri-protocol/kolibri-go/pkg/transport"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

type readItem struct {
	data []byte
	err  error
}

// fakeChannel plays the broker side of one connection.
type fakeChannel struct {
	reads chan readItem
	done  chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closed    bool
	closeCode int
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{reads: make(chan readItem, 64), done: make(chan struct{})}
}

func (c *fakeChannel) ReadMessage() (bool, []byte, error) {
	select {
	case it := <-c.reads:
		return false, it.data, it.err
	case <-c.done:
		return false, nil, &transport.CloseError{Code: wire.CloseAbnormal}
	}
}

func (c *fakeChannel) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed connection")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

// WriteClose answers with the same close code, like a well behaved broker.
func (c *fakeChannel) WriteClose(code int, _ string) error {
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
	c.reads <- readItem{err: &transport.CloseError{Code: code}}
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

func (c *fakeChannel) RemoteAddr() string { return "broker:9000" }

func (c *fakeChannel) send(s string)      { c.reads <- readItem{data: []byte(s)} }
func (c *fakeChannel) peerClose(code int) { c.reads <- readItem{err: &transport.CloseError{Code: code}} }

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *fakeChannel) sentCloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// envelope decodes the i-th written frame.
func (c *fakeChannel) envelope(t *testing.T, i int) *wire.Envelope {
	t.Helper()
	c.mu.Lock()
	require.Less(t, i, len(c.written), "frame %d not written", i)
	data := c.written[i]
	c.mu.Unlock()
	env, _, err := wire.Decode(data)
	require.NoError(t, err)
	return env
}

// fakeDialer hands out queued channels and fails when none are queued.
type fakeDialer struct {
	mu    sync.Mutex
	chans []*fakeChannel
	dials int
}

func (d *fakeDialer) queue(chans ...*fakeChannel) {
	d.mu.Lock()
	d.chans = append(d.chans, chans...)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(context.Context, func(transport.ControlType)) (transport.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.chans) == 0 {
		return nil, errors.New("connection refused")
	}
	ch := d.chans[0]
	d.chans = d.chans[1:]
	return ch, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// traceCounter counts inbound frames so tests can wait for delivery.
type traceCounter struct {
	mu     sync.Mutex
	frames int
	events []log.Event
}

func (c *traceCounter) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	if e.Frame != nil && e.Direction == log.DirectionIn {
		c.frames++
	}
}

func (c *traceCounter) inbound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

type mockListener struct {
	mock.Mock
	id   string
	path string
}

func newMockListener(id, path string) *mockListener {
	l := &mockListener{id: id, path: path}
	l.On("SetStatus", mock.Anything).Return()
	return l
}

func (l *mockListener) ID() string   { return l.id }
func (l *mockListener) Path() string { return l.path }
func (l *mockListener) SetStatus(st Status) {
	l.Called(st)
}

// harness drives a Session on a manual loop against fake broker channels.
type harness struct {
	t        *testing.T
	m        *loop.Manual
	dialer   *fakeDialer
	trace    *traceCounter
	s        *Session
	ch       *fakeChannel
	statuses []Status
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "plant.example.com"
	cfg.Port = 9000
	cfg.User = "Alice"
	cfg.Password = "secret"
	cfg.KeepAliveInterval = 0
	return cfg
}

func newHarness(t *testing.T, mutate func(*Config, *Options)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		m:      loop.NewManual(),
		dialer: &fakeDialer{},
		trace:  &traceCounter{},
	}
	cfg := testConfig()
	opts := Options{Loop: h.m, Dialer: h.dialer, Trace: h.trace, Now: h.m.Now}
	if mutate != nil {
		mutate(&cfg, &opts)
	}
	s, err := NewSession(cfg, opts)
	require.NoError(t, err)
	h.s = s
	require.NoError(t, s.OnStatus(func(st Status) { h.statuses = append(h.statuses, st) }))
	h.m.Drain()
	return h
}

// settle drains the loop until cond holds, giving dial and read
// goroutines time to post.
func (h *harness) settle(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.m.Drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

// open connects to a fresh channel and waits for getChallenge.
func (h *harness) open() *fakeChannel {
	h.t.Helper()
	ch := newFakeChannel()
	h.dialer.queue(ch)
	h.ch = ch
	require.NoError(h.t, h.s.Connect())
	h.settle(func() bool { return ch.count() >= 1 })
	return ch
}

// expectOpen waits for a reconnect to the queued channel.
func (h *harness) expectOpen(ch *fakeChannel) {
	h.t.Helper()
	h.ch = ch
	h.settle(func() bool { return ch.count() >= 1 })
}

// inject delivers a broker frame and waits until the session read it.
func (h *harness) inject(frame string) {
	h.t.Helper()
	before := h.trace.inbound()
	h.ch.send(frame)
	h.settle(func() bool { return h.trace.inbound() > before })
}

func (h *harness) result(env *wire.Envelope, result string) {
	h.t.Helper()
	h.inject(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, env.IDValue(), result))
}

func (h *harness) rpcError(env *wire.Envelope, code int, msg string) {
	h.t.Helper()
	h.inject(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`, env.IDValue(), code, msg))
}

// handshake answers getChallenge and login on the current channel,
// starting at frame index first.
func (h *harness) handshake(first int, loginResult string) {
	h.t.Helper()
	challenge := h.ch.envelope(h.t, first)
	require.Equal(h.t, wire.MethodGetChallenge, challenge.Method)
	h.result(challenge, "12345")

	h.settle(func() bool { return h.ch.count() >= first+2 })
	login := h.ch.envelope(h.t, first+1)
	require.Equal(h.t, wire.MethodLogin, login.Method)
	h.result(login, loginResult)
	require.True(h.t, h.s.Connected())
}

// login opens a connection and completes the handshake.
func (h *harness) login() *fakeChannel {
	h.t.Helper()
	ch := h.open()
	h.handshake(0, "{}")
	return ch
}

func paramsOf(t *testing.T, env *wire.Envelope) []wire.PathParam {
	t.Helper()
	var p []wire.PathParam
	require.NoError(t, json.Unmarshal(env.Params, &p))
	return p
}
