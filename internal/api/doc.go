// Package api exposes the HTTP surface: a REST API under /api/v1 for
// device management and reading queries, a health endpoint, and the
// WebSocket upgrade path that feeds the live hub.
//
// Device mutations made over HTTP broadcast the same lifecycle events
// the ingestion pipeline emits, so WebSocket clients see operator edits
// and field activity through one stream.
package api
