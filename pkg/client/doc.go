// Package client maintains a local mirror of the state of a remote debugged
// process: which threads exist, what their call stacks look like, and which
// stepping operation is in flight on each thread.
//
// Mirror objects are eventually consistent. State changes arrive either as
// unsolicited notifications from the debug agent or as replies to explicit
// requests, and the two can race to report the same event; the handlers here
// are idempotent so that either ordering converges to the same state.
//
// Everything in this package runs on a single dispatch loop owned by the
// Session. Mirror objects have no internal locking; the only rule is that
// they are touched from that loop.
package client
