// Package twin holds the in-memory digital twin: providers, their services
// and resources, and the Registry that owns them.
//
// # Model
//
//	Provider "sensor1" (model sensor1)
//	├── admin
//	│   ├── friendlyName  string
//	│   ├── location      geo
//	│   ├── icon          string
//	│   └── modelName     string  = "sensor1"
//	└── env
//	    ├── temp          float   21.5 @ T1
//	    └── humidity      float   40   @ T1
//
// Every provider carries the admin service. Services and resources are
// created implicitly on first write unless the provider's model is frozen.
// A resource's kind is fixed by its declaration or by its first non-null
// value and never changes afterwards.
//
// # Concurrency
//
// Nothing in this package is safe for concurrent use. The gateway worker is
// the only goroutine that touches a Registry; everyone else submits commands
// to the gateway or reads snapshots.
//
// # Atomic commands
//
// The gateway calls Begin before each command and Commit or Rollback after.
// Every mutation pushes an undo step, so a command that fails halfway leaves
// the registry exactly as it found it, and its recorded events are dropped.
//
// # Update rules
//
//   - values: last writer wins by timestamp; an update not newer than the
//     stored value is skipped without an event
//   - metadata: merge, with optional null removal and full replacement
//   - removal: cascades downward; auto-delete providers disappear with their
//     last user service
package twin
