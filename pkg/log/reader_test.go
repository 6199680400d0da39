package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTraceFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.klog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create trace: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	defer r.Close()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "c1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Broker: "wss://a/", Message: &MessageEvent{Method: "kolibri.login"}},
		{Timestamp: base.Add(time.Second), ConnectionID: "c1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryControl,
			Broker: "wss://a/", ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "c2", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Broker: "wss://b/", Message: &MessageEvent{Method: "kolibri.write"}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "c2", Direction: DirectionIn, Layer: LayerService, Category: CategoryState,
			Broker: "wss://b/", StateChange: &StateChangeEvent{NewState: "CONNECTED"}},
	}
	path := createTraceFile(t, events)

	in := DirectionIn
	wireLayer := LayerWire
	state := CategoryState
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "c1"}, 2},
		{"direction", Filter{Direction: &in}, 3},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"category", Filter{Category: &state}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"method", Filter{Method: "kolibri.write"}, 1},
		{"broker", Filter{Broker: "wss://a/"}, 2},
		{"combined", Filter{Direction: &in, Layer: &wireLayer}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.klog")); err == nil {
		t.Error("expected error for missing file")
	}
}
