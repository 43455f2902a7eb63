// Package intake is the southbound write path.
//
// Adapters turn raw device payloads into ValueUpdate and MetadataUpdate
// records, either directly or through Decode for the JSON wire shape, and
// hand them to a Pusher. A batch is applied as one gateway command: either
// every update lands or none does.
package intake
