// Package interaction correlates Kolibri requests with their replies and
// dispatches inbound requests to handlers.
//
// # Ledger
//
// The Ledger allocates 16-bit correlation ids (1..65535, wrapping, never
// 0, skipping ids still pending) and tracks every outbound request until
// its result or error arrives:
//
//	id, err := ledger.SendWithRetry(wire.MethodSubscribe, wire.PathParams("/a"), nil)
//	...
//	req, err := ledger.Resolve(env.IDValue()) // on result or error
//
// A request sent with SendWithRetry is resent unchanged when no reply
// arrives within the timeout, up to MaxRetries times, and then dropped
// silently. Resolve removes a request exactly once; replies for unknown
// ids yield ErrUnsolicited. Clear drops everything when the connection
// closes.
//
// # Dispatcher
//
// The Dispatcher maps method names to handlers and builds the result or
// error reply for inbound requests. Unknown methods are answered with
// "method not found".
//
// The Ledger and Dispatcher are not safe for concurrent use; they are
// owned by a session loop.
package interaction
