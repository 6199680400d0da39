// Package loop provides the single logical timeline that Kolibri sessions
// run on.
//
// Every piece of protocol state (session state, pending requests,
// subscriptions) is mutated from closures executed by a Loop, one at a
// time and in the order they were posted. Network readers, dial goroutines
// and timers never touch state directly; they Post work to the loop.
//
// # Timers
//
// AfterFunc schedules a callback on the loop. A timer that has been stopped
// never runs its callback, even when the underlying time.Timer already
// fired and the callback is waiting in the queue.
//
// # Testing
//
// Manual implements Scheduler with a virtual clock. Tests post work, call
// Drain to run it and Advance to move time forward deterministically.
package loop
