// Package ingest is the spine of the pipeline: raw MQTT messages in,
// presence updates, stored readings and live events out.
//
// Classification is a pure function over topic shape and payload, so
// routing rules are testable without a broker. The service around it
// owns the side effects: device presence upserts, reading inserts with
// bounded write deadlines, the optional time-series mirror, and
// WebSocket fan-out.
//
// The pipeline is deliberately lossy at the edges. Messages without a
// device identity are dropped with a log line, and a failed reading
// write never stops presence tracking or live fan-out.
package ingest
