// Package notify turns committed twin changes into typed events and delivers
// them to subscribers.
//
// # Architecture
//
//	┌──────────────────────┐   commit   ┌───────────────────┐   FIFO   ┌───────────┐
//	│ Accumulator          │──────────▶│ Router.Publish     │────────▶│ dispatcher│──▶ listeners
//	│ (one per command)    │  []Event   │ (never blocks)     │  queue   │ goroutine │
//	└──────────────────────┘            └───────────────────┘          └───────────┘
//
// An Accumulator is created for every gateway command. The twin registry
// records lifecycle, data and metadata deltas into it while the command runs.
// Nothing is sent until the command commits; a failed command discards its
// accumulator.
//
// # Topics
//
//	LIFECYCLE/<provider>[/<service>[/<resource>]]
//	DATA/<provider>/<service>/<resource>
//	METADATA/<provider>/<service>/<resource>
//
// Subscription patterns match by segment prefix. A "*" segment matches any
// single segment and a trailing "#" matches any remaining depth:
//
//	DATA/sensor1            every DATA event of provider sensor1
//	DATA/*/env/temp         temp in service env of any provider
//	LIFECYCLE/#             every lifecycle event
//
// # Delivery
//
// Events of one command are delivered in the order they were recorded. Across
// commands, delivery follows commit order because a single dispatcher
// goroutine drains one FIFO queue. The queue is unbounded so the gateway
// worker never waits on a listener; a listener may therefore submit and await
// new gateway commands without deadlocking the worker.
//
// Listener errors and panics are logged and isolated: other listeners still
// receive the event and the committed change stays committed.
package notify
