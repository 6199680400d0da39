package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
)

// FilterOptions selects the events copied by the filter command.
type FilterOptions struct {
	ViewOptions

	Output    string
	Broker    string
	TimeStart string
	TimeEnd   string
}

// RunFilter copies the matching events of the trace at path to a new
// trace file and reports the count to w.
func RunFilter(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Filter()
	if err != nil {
		return err
	}
	filter.Broker = opts.Broker

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer out.Close()

	count := 0
	if err := eachEvent(reader, func(event log.Event) error {
		out.Log(event)
		count++
		return nil
	}); err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, out.Path())
	return nil
}
