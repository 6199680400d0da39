// Package log provides the Kolibri protocol trace.
//
// The trace is separate from operational logging (slog): it records every
// frame, decoded envelope, control message and state change of a consumer
// session as a machine-readable event stream.
//
// # Basic Usage
//
//	// Development: trace to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: trace to a binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/kolibri/consumer.klog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw WebSocket text frames (FrameEvent) and control frames (ControlMsgEvent)
//   - Wire: decoded JSON-RPC envelopes (MessageEvent)
//   - Service: transport and broker session state changes (StateChangeEvent)
//
// # File Format
//
// Trace files are a sequence of CBOR-encoded events with the .klog
// extension. The kolibri-log command views, summarizes and exports them.
package log
