package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kolibri-protocol/kolibri-go/pkg/log"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Stats holds aggregate statistics about a trace.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	Methods           map[string]*MethodStats
	Errors            int
	Retries           int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for one WebSocket connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Broker    string
	Project   string
	User      string

	// CloseCode is the last close code seen on the connection.
	CloseCode *int
}

// MethodStats holds per RPC method counters. Requests counts sends
// including retries.
type MethodStats struct {
	Requests   int
	Errors     int
	Replies    int
	TotalDelay time.Duration
	MaxDelay   time.Duration
}

// AvgLatency is the mean request latency of replied requests.
func (m *MethodStats) AvgLatency() time.Duration {
	if m.Replies == 0 {
		return 0
	}
	return m.TotalDelay / time.Duration(m.Replies)
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
		Methods:           make(map[string]*MethodStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.Broker == "" {
		conn.Broker = event.Broker
	}
	if event.Project != "" {
		conn.Project = event.Project
		conn.User = event.User
	}
	if event.ControlMsg != nil && event.ControlMsg.CloseCode != nil {
		code := *event.ControlMsg.CloseCode
		conn.CloseCode = &code
	}

	if msg := event.Message; msg != nil && msg.Method != "" {
		ms, ok := s.Methods[msg.Method]
		if !ok {
			ms = &MethodStats{}
			s.Methods[msg.Method] = ms
		}
		switch msg.Kind {
		case wire.KindRequest, wire.KindRequestRouted:
			ms.Requests++
		case wire.KindError, wire.KindErrorRouted:
			ms.Errors++
		}
		if msg.Latency != nil {
			ms.Replies++
			ms.TotalDelay += *msg.Latency
			if *msg.Latency > ms.MaxDelay {
				ms.MaxDelay = *msg.Latency
			}
		}
		if msg.Retry > 0 {
			s.Retries++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the trace at path and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	if err := eachEvent(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	}); err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Kolibri Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Methods) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Methods:")
		names := make([]string, 0, len(stats.Methods))
		for name := range stats.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ms := stats.Methods[name]
			fmt.Fprintf(w, "  %-22s requests=%d errors=%d", name, ms.Requests, ms.Errors)
			if ms.Replies > 0 {
				fmt.Fprintf(w, " avg=%s max=%s", formatDuration(ms.AvgLatency()), formatDuration(ms.MaxDelay))
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Broker != "" {
				fmt.Fprintf(w, "           Broker: %s\n", c.stats.Broker)
			}
			if c.stats.Project != "" {
				fmt.Fprintf(w, "           Login: %s@%s\n", c.stats.User, c.stats.Project)
			}
			if c.stats.CloseCode != nil {
				fmt.Fprintf(w, "           Closed: %d\n", *c.stats.CloseCode)
			}
		}
	}

	if stats.Retries > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Retries: %d\n", stats.Retries)
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
