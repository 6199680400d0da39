package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolibri-protocol/kolibri-go/pkg/connection"
	"github.com/kolibri-protocol/kolibri-go/pkg/loop"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

type harness struct {
	m       *loop.Manual
	dialer  *fakeDialer
	handler *recordingHandler
	session *Session
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		m:       loop.NewManual(),
		dialer:  &fakeDialer{},
		handler: &recordingHandler{},
	}
	h.session = NewSession(h.m, h.dialer, h.handler, cfg)
	return h
}

// open starts the session against a fresh channel and waits for OnOpen.
func (h *harness) open(t *testing.T) *fakeChannel {
	t.Helper()
	ch := newFakeChannel()
	h.dialer.queue(dialResult{ch: ch})
	opens := h.handler.opens
	require.NoError(t, h.session.Start())
	settle(t, h.m, func() bool { return h.handler.opens == opens+1 })
	return ch
}

func TestSessionOpen(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.Equal(t, StateIdle, h.session.State())

	h.open(t)
	assert.Equal(t, StateOpen, h.session.State())
	assert.NotEmpty(t, h.session.ConnectionID())
	assert.ErrorIs(t, h.session.Start(), ErrAlreadyStarted)
}

func TestSessionMessages(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ch := h.open(t)

	ch.binary([]byte{1, 2, 3})
	ch.text(`{"jsonrpc":"2.0","id":1,"result":0}`)
	settle(t, h.m, func() bool { return len(h.handler.messages) == 1 })
	assert.Equal(t, []string{`{"jsonrpc":"2.0","id":1,"result":0}`}, h.handler.messages)
}

func TestSessionSend(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.ErrorIs(t, h.session.Send([]byte("x")), ErrNotOpen)

	ch := h.open(t)
	require.NoError(t, h.session.Send([]byte(`{"a":1}`)))
	assert.Equal(t, []string{`{"a":1}`}, ch.Written())
}

func TestSessionConnectRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectRetries = 2
	h := newHarness(t, cfg)

	require.NoError(t, h.session.Start())
	settle(t, h.m, func() bool { return len(h.handler.errs) == 1 })
	assert.Equal(t, StateConnecting, h.session.State())

	d, ok := h.m.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	h.m.Advance(2 * time.Second)
	settle(t, h.m, func() bool { return len(h.handler.errs) == 2 })

	d, _ = h.m.NextDeadline()
	assert.Equal(t, 4*time.Second, d)

	h.m.Advance(4 * time.Second)
	settle(t, h.m, func() bool { return len(h.handler.closes) == 1 })

	assert.Equal(t, 3, h.dialer.Dials())
	assert.Len(t, h.handler.errs, 3)
	assert.Equal(t, []int{wire.CloseAbnormal}, h.handler.closes)
	assert.Equal(t, StateClosed, h.session.State())
	assert.Equal(t, 0, h.m.PendingTimers())
}

func TestSessionNoRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectRetries = 0
	h := newHarness(t, cfg)

	require.NoError(t, h.session.Start())
	settle(t, h.m, func() bool { return len(h.handler.closes) == 1 })
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, []int{wire.CloseAbnormal}, h.handler.closes)
}

func TestSessionRetryThenOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectRetries = connection.Unlimited
	h := newHarness(t, cfg)

	ch := newFakeChannel()
	h.dialer.queue(dialResult{err: assert.AnError}, dialResult{ch: ch})

	require.NoError(t, h.session.Start())
	settle(t, h.m, func() bool { return len(h.handler.errs) == 1 })
	h.m.Advance(2 * time.Second)
	settle(t, h.m, func() bool { return h.handler.opens == 1 })
	assert.Equal(t, StateOpen, h.session.State())
}

func TestSessionKeepalive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAlive = KeepAliveConfig{Interval: 10 * time.Second, Timeout: 5 * time.Second}
	h := newHarness(t, cfg)
	ch := h.open(t)

	h.m.Advance(16 * time.Second)
	assert.Empty(t, h.handler.closes)

	h.dialer.control(ControlPing)
	h.m.Drain()

	h.m.Advance(16 * time.Second)
	assert.Empty(t, h.handler.closes)

	ch.text(`{}`)
	settle(t, h.m, func() bool { return len(h.handler.messages) == 1 })

	h.m.Advance(16 * time.Second)
	assert.Empty(t, h.handler.closes)

	h.m.Advance(time.Second)
	assert.Equal(t, []int{wire.CloseKeepalive}, h.handler.closes)
	assert.Equal(t, StateClosed, h.session.State())
	assert.True(t, ch.IsClosed())
}

func TestSessionKeepaliveDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAlive = KeepAliveConfig{}
	h := newHarness(t, cfg)
	h.open(t)

	h.m.Advance(time.Hour)
	assert.Empty(t, h.handler.closes)
}

func TestSessionStopGraceful(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ch := h.open(t)
	ch.echoClose = true

	h.session.Stop(wire.CloseUser)
	settle(t, h.m, func() bool { return len(h.handler.closes) == 1 })

	assert.Equal(t, []int{wire.CloseUser}, h.handler.closes)
	assert.Equal(t, wire.CloseUser, ch.closeCode)
	assert.True(t, ch.IsClosed())
	assert.Equal(t, 0, h.m.PendingTimers())
}

func TestSessionStopGraceTimer(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ch := h.open(t)

	h.session.Stop(0)
	assert.Equal(t, StateClosing, h.session.State())
	assert.Equal(t, wire.CloseNormal, ch.closeCode)

	h.m.Advance(DefaultCloseTimeout)
	assert.Equal(t, []int{wire.CloseNormal}, h.handler.closes)
	assert.True(t, ch.IsClosed())
}

func TestSessionTerminateEmitsOneClose(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ch := h.open(t)

	ch.peerClose(wire.CloseThrottle)
	h.session.Terminate(wire.CloseAbnormal)
	assert.Equal(t, []int{wire.CloseAbnormal}, h.handler.closes)

	// The queued peer close belongs to the terminated connection.
	time.Sleep(10 * time.Millisecond)
	h.m.Drain()
	assert.Len(t, h.handler.closes, 1)

	h.session.Terminate(wire.CloseAbnormal)
	h.session.Stop(0)
	assert.Len(t, h.handler.closes, 1)
}

func TestSessionPeerClose(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ch := h.open(t)

	ch.peerClose(wire.CloseRetry)
	settle(t, h.m, func() bool { return len(h.handler.closes) == 1 })
	assert.Equal(t, []int{wire.CloseRetry}, h.handler.closes)
	assert.Equal(t, StateClosed, h.session.State())
}

func TestSessionStopWhileConnecting(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.dialer.block = make(chan struct{})
	ch := newFakeChannel()
	h.dialer.queue(dialResult{ch: ch})

	require.NoError(t, h.session.Start())
	settle(t, h.m, func() bool { return h.dialer.Dials() == 1 })

	h.session.Stop(0)
	assert.Equal(t, []int{wire.CloseNormal}, h.handler.closes)
	assert.Equal(t, StateClosed, h.session.State())

	close(h.dialer.block)
	time.Sleep(10 * time.Millisecond)
	h.m.Drain()
	assert.Equal(t, 0, h.handler.opens)
}

func TestSessionRestart(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ch := h.open(t)
	first := h.session.ConnectionID()

	ch.peerClose(wire.CloseNormal)
	settle(t, h.m, func() bool { return len(h.handler.closes) == 1 })

	h.open(t)
	assert.NotEqual(t, first, h.session.ConnectionID())
	assert.Equal(t, 2, h.handler.opens)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
	assert.Equal(t, "PING", ControlPing.String())
}
