package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolibri-protocol/kolibri-go/pkg/broker"
	"github.com/kolibri-protocol/kolibri-go/pkg/subscription"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

type fakeSession struct {
	subs        *subscription.Set
	written     []wire.PointState
	unsubscribe []string
	writeErr    error
}

func newFakeSession() *fakeSession {
	return &fakeSession{subs: subscription.NewSet()}
}

func (f *fakeSession) State() broker.State { return broker.StateConnected }
func (f *fakeSession) Status() broker.Status {
	return broker.Status{Level: broker.LevelOK, Text: broker.TextConnected}
}
func (f *fakeSession) ClientID() string                   { return "client-7" }
func (f *fakeSession) Pending() int                       { return 0 }
func (f *fakeSession) Subscriptions() []subscription.Info { return f.subs.Infos() }

func (f *fakeSession) Subscribe(path string, h subscription.Handler) error {
	_, err := f.subs.Want(path, h)
	return err
}

func (f *fakeSession) Unsubscribe(path string) error {
	f.unsubscribe = append(f.unsubscribe, path)
	f.subs.Remove(path)
	return nil
}

func (f *fakeSession) Write(p wire.PointState) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, p)
	return nil
}

func newTestConsole(s Session, onPoint subscription.Handler) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := newConsole(s, onPoint, &out)
	c.now = func() time.Time { return time.UnixMilli(1000) }
	return c, &out
}

func TestExecuteSubscribe(t *testing.T) {
	s := newFakeSession()
	var got []wire.PointState
	c, out := newTestConsole(s, func(p wire.PointState) { got = append(got, p) })

	assert.False(t, c.Execute("sub /a /b"))
	assert.Contains(t, out.String(), "Subscribed /a")
	assert.Contains(t, out.String(), "Subscribed /b")
	assert.Equal(t, 2, s.subs.Len())

	require.True(t, s.subs.Deliver(wire.PointState{Path: "/a", Quality: 1, Value: 3.0}))
	require.Len(t, got, 1)

	out.Reset()
	c.Execute("subs")
	assert.Contains(t, out.String(), "Subscriptions (2)")
	assert.Contains(t, out.String(), "last=3")

	out.Reset()
	c.Execute("unsub /a")
	assert.Equal(t, []string{"/a"}, s.unsubscribe)
	assert.Contains(t, out.String(), "Unsubscribed /a")
}

func TestExecuteWrite(t *testing.T) {
	tests := []struct {
		line  string
		value any
	}{
		{"write /a 21.5", 21.5},
		{"write /a true", true},
		{`write /a {"x":1}`, map[string]any{"x": float64(1)}},
		{"write /a hello world", "hello world"},
		{`w /a "quoted"`, "quoted"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s := newFakeSession()
			c, _ := newTestConsole(s, nil)

			c.Execute(tt.line)
			require.Len(t, s.written, 1)
			assert.Equal(t, wire.PointState{Path: "/a", Timestamp: 1000, Quality: wire.QualityGood, Value: tt.value}, s.written[0])
		})
	}
}

func TestExecuteWriteFailure(t *testing.T) {
	s := newFakeSession()
	s.writeErr = broker.ErrNotConnected
	c, out := newTestConsole(s, nil)

	c.Execute("write /a 1")
	assert.Contains(t, out.String(), "Write /a failed: "+broker.ErrNotConnected.Error())
}

func TestExecuteUsage(t *testing.T) {
	c, out := newTestConsole(newFakeSession(), nil)

	for _, line := range []string{"sub", "unsub", "write /a"} {
		c.Execute(line)
	}
	assert.Contains(t, out.String(), "Usage: sub")
	assert.Contains(t, out.String(), "Usage: unsub")
	assert.Contains(t, out.String(), "Usage: write")

	out.Reset()
	c.Execute("frobnicate")
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	out.Reset()
	assert.False(t, c.Execute("   "))
	assert.Empty(t, out.String())
}

func TestExecuteStatusAndQuit(t *testing.T) {
	c, out := newTestConsole(newFakeSession(), nil)

	c.Execute("status")
	assert.Contains(t, out.String(), "CONNECTED")
	assert.Contains(t, out.String(), "client-7")

	for _, q := range []string{"quit", "exit", "Q"} {
		assert.True(t, c.Execute(q), q)
	}
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, float64(5), ParseValue("5"))
	assert.Equal(t, nil, ParseValue("null"))
	assert.Equal(t, []any{float64(1), "x"}, ParseValue(`[1,"x"]`))
	assert.Equal(t, "open", ParseValue("open"))
}

func TestFormatPoint(t *testing.T) {
	p := wire.PointState{Path: "/t", Timestamp: 1000, Quality: 1, Value: "on"}
	want := `/t = "on" (quality 1, ` + time.UnixMilli(1000).Format("15:04:05.000") + ")"
	assert.Equal(t, want, FormatPoint(p))
}

func TestSubscribeErrorReported(t *testing.T) {
	s := newFakeSession()
	s.subs = subscription.NewSetWithConfig(subscription.Config{MaxSubscriptions: 1})
	c, out := newTestConsole(s, nil)

	c.Execute("sub /a /b")
	assert.Contains(t, out.String(), "Subscribe /b failed")
	assert.Contains(t, out.String(), subscription.ErrResourceExhausted.Error())
	assert.Contains(t, out.String(), "Subscribed /a")
}
