// Package subscription tracks the data points a Kolibri consumer wants to
// receive.
//
// Each path carries two flags: Want, the state the application asked for,
// and Subscribed, the state the broker last confirmed. The two diverge
// while requests are in flight and after every disconnect, when all
// confirmations are dropped but Want is kept. After the next login the
// session replays every path with Want set in one subscribe request.
//
// # Lifecycle
//
// An entry is created by the first Want or Unwant for its path and is only
// removed when the broker reports the path as invalid. Unwant keeps the
// handler so a later Want can reuse it.
//
// A Set is not safe for concurrent use. It is owned by the session loop.
package subscription
