// Package telemetry stores and ages out decoded sensor readings.
//
// Readings are append-only rows in SQLite: the ingestion pipeline
// inserts them as messages arrive, the HTTP API lists them per device
// with a time window, and a background janitor purges anything older
// than the configured retention window.
package telemetry
