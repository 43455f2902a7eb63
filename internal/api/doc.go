// Package api implements the HTTP REST API and WebSocket server for Gray Twin.
//
// This package provides:
//   - Snapshot queries over providers with identity, model and location filters
//   - Resource reads at CACHED, WEAK or HARD level, value and metadata writes
//   - Batch update intake using the southbound JSON update format
//   - Value history queries backed by the SQLite history repository
//   - WebSocket streaming of notification events by topic pattern
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Sessions
//
// Every HTTP request runs inside a short-lived northbound session closed when
// the handler returns. A WebSocket connection owns one session for its whole
// lifetime; its subscriptions are session subscriptions and end when the
// connection closes.
//
// # Endpoints
//
//	GET    /api/v1/health
//	GET    /api/v1/system
//	GET    /api/v1/metrics
//	POST   /api/v1/updates
//	GET    /api/v1/providers
//	GET    /api/v1/providers/{provider}
//	DELETE /api/v1/providers/{provider}
//	GET    /api/v1/providers/{provider}/services/{service}
//	GET    /api/v1/providers/{provider}/services/{service}/resources/{resource}
//	GET    .../resources/{resource}/value
//	PUT    .../resources/{resource}/value
//	PUT    .../resources/{resource}/metadata
//	GET    .../resources/{resource}/history
//	GET    /api/v1/ws
package api
