// Package session provides northbound client sessions.
//
// A Session wraps the gateway for one client interaction. It is bound to
// the execution context it was opened in, and every operation checks that
// binding and the session's liveness before doing anything. Reads go
// through the snapshot builder, writes and removals run as gateway
// commands, and subscriptions made through the session end with it.
package session
