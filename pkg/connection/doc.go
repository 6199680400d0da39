// Package connection provides the retry schedule shared by the transport
// and broker sessions.
//
// # Reconnection Strategy
//
// Failed attempts are retried with exponential backoff:
//
//  1. Initial delay: 2 seconds
//  2. Exponential increase: 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful or the retry budget is spent
//  5. Reset to 2s on success
//
// Jitter is disabled by default; it can be enabled per schedule:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// # Scheduling
//
// A Retrier arms its retries on a loop.Scheduler so the retried function
// runs on the owner's event loop. Cancel and Reset withdraw a pending
// retry; a withdrawn retry never runs.
package connection
