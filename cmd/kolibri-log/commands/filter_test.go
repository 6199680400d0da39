package commands

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterByDirectionAndLayer(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.klog")

	var buf bytes.Buffer
	err := RunFilter(path, FilterOptions{
		ViewOptions: ViewOptions{Direction: "in", Layer: "wire"},
		Output:      outPath,
	}, &buf)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Direction != log.DirectionIn || e.Layer != log.LayerWire {
			t.Errorf("unexpected event %+v", e)
		}
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected report %q", buf.String())
	}
}

func TestFilterByTimeRange(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.klog")

	start := time.Date(2026, 1, 28, 10, 15, 33, 0, time.UTC)
	err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: start.Format(time.RFC3339),
	}, io.Discard)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestFilterByBroker(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.klog")

	if err := RunFilter(path, FilterOptions{Output: outPath, Broker: "wss://plant.example.com:9000/"}, io.Discard); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if events := readAll(t, outPath); len(events) != 1 || events[0].Frame == nil {
		t.Errorf("expected the single frame event, got %d events", len(events))
	}
}

func TestFilterInvalidTime(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	err := RunFilter(path, FilterOptions{Output: filepath.Join(t.TempDir(), "x.klog"), TimeEnd: "yesterday"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "time-end") {
		t.Errorf("expected time-end error, got %v", err)
	}
}
