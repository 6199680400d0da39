package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

func TestSlogAdapterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	id := uint16(3)
	code := -31906
	a.Log(Event{
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Message: &MessageEvent{
			Kind: wire.KindError, ID: &id, Method: wire.MethodSubscribe,
			ErrorCode: &code, ErrorMessage: "invalid path",
		},
	})

	out := buf.String()
	for _, want := range []string{"conn_id=conn-1", "kind=ERROR", "id=3", "method=kolibri.subscribe", "code=-31906"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestSlogAdapterSkipsAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	NewSlogAdapter(logger).Log(Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}})
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
