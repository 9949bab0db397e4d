package telemetry

import "time"

// Reading is one decoded telemetry message from a device.
//
// Data holds the decoded payload fields. Scalar payloads ("21.5" on the
// wire) are normalised into a single "value" field so every reading has
// the same shape downstream.
type Reading struct {
	ID        string            `json:"id"`
	DeviceID  string            `json:"deviceId"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]any    `json:"data"`
	Unit      string            `json:"unit,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Query narrows a reading listing to a device and optional time window.
//
// Zero-value From/To mean unbounded on that side. Limit caps the result
// size; zero applies DefaultLimit.
type Query struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
}

// DefaultLimit bounds listings when the caller does not set one.
const DefaultLimit = 100

// MaxLimit is the hard ceiling on a single listing.
const MaxLimit = 1000
