// Package device holds the device registry: the persistent record of
// every sensor and actuator the system has seen or been told about.
//
// Devices arrive two ways. Operators create them explicitly through the
// HTTP API, and the ingestion pipeline auto-provisions them the first
// time a message shows up from an unknown device identifier. Both paths
// converge on the same SQLite-backed repository; the transactional
// upsert guarantees a concurrent burst of first messages creates the
// record exactly once.
//
// The DeviceID field is the stable identifier carried in MQTT topic
// segments and payloads. It is unique and immutable for the lifetime of
// the record.
package device
