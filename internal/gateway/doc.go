// Package gateway is the single serialisation point of the twin.
//
// A Gateway owns a twin.Registry and one worker goroutine draining a bounded
// queue of commands. Any goroutine may submit commands; none of them touches
// the registry directly.
//
//	caller ──Execute──▶ [queue] ──▶ worker ──▶ Registry
//	   ▲                               │
//	   └────────── Future ◀────────────┤ commit
//	                                   ▼
//	                          notify.Router.Publish
//
// # Commands
//
// A command is a function receiving the command context and a *Tx. The
// context carries a fresh scope.ExecID; the Tx exposes handle-checked views
// (Twin, Models) that are invalidated when the command returns, so a handle
// leaked out of a command, or used from another goroutine's context, fails
// with scope.ErrInvalidState or scope.ErrCrossContextAccess.
//
// A command either commits completely or leaves no trace: errors and panics
// roll the registry back and drop the command's events. Events of committed
// commands are published in commit order after the mutation is applied, so
// a listener never sees a change the next command could not.
//
// # Waiting
//
// Future.Wait respects the caller's context; a timed-out caller stops
// waiting but the command still runs. Cancel removes a command that has not
// started yet. Waiting on a pending future from inside a command of the
// same gateway fails with ErrReentrantWait instead of deadlocking the
// worker. Listeners run on the router's goroutine, not the worker, and may
// submit and wait on commands freely.
package gateway
