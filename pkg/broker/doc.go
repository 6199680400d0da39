// Package broker implements the consumer side of a Kolibri broker session.
//
// A Session owns one transport connection, the pending-request ledger and
// the subscription set. It performs the challenge/login handshake after
// every open, replays wanted subscriptions after login, answers the
// broker's kolibri.write, kolibri.unsubscribed and kolibri.getRpcInfo
// requests, and reconnects with backoff after the connection drops.
//
// # Threading
//
// All protocol state lives on a single loop. The public methods post to
// that loop and return without waiting, except for the read accessors,
// which wait for the loop. Point handlers and listener callbacks run on
// the loop and must not block; they may call the Session's posting methods.
//
// # Listeners
//
// Collaborators register as Listener values. The first registration
// connects the session, the last deregistration disconnects it. Every
// state change is reported to all listeners as a Status; path specific
// problems (failed subscribe or write, invalid path) only reach listeners
// bound to that path.
package broker
