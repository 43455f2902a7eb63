// Package snapshot captures deep copies of the twin.
//
// A capture runs as a single gateway command, walks the providers selected
// by a Criterion and copies what it selects. Pulled resources are refreshed
// first according to the GetLevel: Weak never pulls, Hard always pulls and
// Cached pulls only stale or empty values. A failing pull is attached to the
// resource's snapshot as a *twin.PullError and never fails the capture.
//
// Snapshots share nothing mutable with the live twin, so callers may keep
// and modify them freely after the command has ended.
package snapshot
