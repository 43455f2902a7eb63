// Package history keeps a local record of resource value changes.
//
// A Recorder subscribes to DATA notifications and writes each committed
// change to a Repository. The SQLite repository stores one row per change
// in the resource_history table, so recent values stay queryable even when
// the time-series database is unavailable.
package history
