package telemetry

import "errors"

// Sentinel errors for telemetry operations.
var (
	// ErrEmptyDeviceID indicates a reading or query without a device identifier.
	ErrEmptyDeviceID = errors.New("device id must not be empty")

	// ErrEmptyData indicates a reading with no decoded payload fields.
	ErrEmptyData = errors.New("reading data must not be empty")

	// ErrInvalidRange indicates a query whose From is after its To.
	ErrInvalidRange = errors.New("invalid time range")
)
