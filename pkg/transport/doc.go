// Package transport provides the WebSocket transport session to a
// Kolibri broker.
//
// The transport layer handles:
//   - TLS WebSocket dialing with the "kolibri" subprotocol, optional proxy
//     and CA list, and an inbound payload cap
//   - connect retries with exponential backoff
//   - a keepalive watchdog fed by every inbound frame, ping and pong
//   - graceful close with a grace timer, and immediate termination
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   JSON-RPC envelopes (text)    │
//	├────────────────────────────────┤
//	│   WebSocket (kolibri)          │
//	├────────────────────────────────┤
//	│   TLS                          │
//	├────────────────────────────────┤
//	│   TCP (optionally via proxy)   │
//	└────────────────────────────────┘
//
// # Events
//
// A Session reports open, close(code), error and message events to its
// Handler on the owner's loop. Every opened connection produces exactly
// one close event. Events from a connection that has already been closed
// are discarded.
//
// # Keepalive
//
// The broker pings at the login interval. The watchdog closes the
// connection with code 4000 when nothing arrives for
// interval + timeout + 2s. An interval of zero disables the watchdog.
package transport
