package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
)

// Record is the exported form of a trace event.
type Record struct {
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	ConnectionID string    `json:"connection_id,omitempty" yaml:"connection_id,omitempty"`
	Direction    string    `json:"direction" yaml:"direction"`
	Layer        string    `json:"layer" yaml:"layer"`
	Category     string    `json:"category" yaml:"category"`
	Type         string    `json:"type" yaml:"type"`
	Broker       string    `json:"broker,omitempty" yaml:"broker,omitempty"`
	Project      string    `json:"project,omitempty" yaml:"project,omitempty"`
	User         string    `json:"user,omitempty" yaml:"user,omitempty"`

	// Frame is the frame text.
	Frame     string `json:"frame,omitempty" yaml:"frame,omitempty"`
	Truncated bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`

	ID           *uint16 `json:"id,omitempty" yaml:"id,omitempty"`
	Method       string  `json:"method,omitempty" yaml:"method,omitempty"`
	Retry        int     `json:"retry,omitempty" yaml:"retry,omitempty"`
	LatencyMS    float64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
	Payload      any     `json:"payload,omitempty" yaml:"payload,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	Entity   string `json:"entity,omitempty" yaml:"entity,omitempty"`
	OldState string `json:"old_state,omitempty" yaml:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty" yaml:"new_state,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`

	CloseCode *int   `json:"close_code,omitempty" yaml:"close_code,omitempty"`
	Context   string `json:"context,omitempty" yaml:"context,omitempty"`
}

// NewRecord flattens event for export.
func NewRecord(event log.Event) Record {
	r := Record{
		Timestamp:    event.Timestamp.UTC(),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Layer:        event.Layer.String(),
		Category:     event.Category.String(),
		Type:         eventType(event),
		Broker:       event.Broker,
		Project:      event.Project,
		User:         event.User,
	}

	switch {
	case event.Frame != nil:
		r.Frame = string(event.Frame.Data)
		r.Truncated = event.Frame.Truncated
	case event.Message != nil:
		m := event.Message
		r.ID = m.ID
		r.Method = m.Method
		r.Retry = m.Retry
		r.Payload = m.Payload
		r.ErrorCode = m.ErrorCode
		r.ErrorMessage = m.ErrorMessage
		if m.Latency != nil {
			r.LatencyMS = float64(m.Latency.Microseconds()) / 1000
		}
	case event.StateChange != nil:
		r.Entity = event.StateChange.Entity.String()
		r.OldState = event.StateChange.OldState
		r.NewState = event.StateChange.NewState
		r.Reason = event.StateChange.Reason
	case event.ControlMsg != nil:
		r.CloseCode = event.ControlMsg.CloseCode
	case event.Error != nil:
		r.ErrorCode = event.Error.Code
		r.ErrorMessage = event.Error.Message
		r.Context = event.Error.Context
	}
	return r
}

// RunExport writes the trace at path to output (stdout when empty) as
// JSON lines or a YAML document stream.
func RunExport(path, format, output string) error {
	if format != "jsonl" && format != "yaml" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, yaml)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	var encode func(Record) error
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		encode = func(r Record) error { return enc.Encode(r) }
	} else {
		enc := json.NewEncoder(w)
		encode = func(r Record) error { return enc.Encode(r) }
	}

	return eachEvent(reader, func(event log.Event) error {
		if err := encode(NewRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}
