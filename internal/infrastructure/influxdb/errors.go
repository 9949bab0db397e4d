package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// Use errors.Is() to check error types:
//
//	client, err := influxdb.Connect(cfg)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
var (
	// ErrDisabled indicates the mirror is turned off in configuration.
	ErrDisabled = errors.New("influxdb disabled in configuration")

	// ErrNotConnected indicates an operation was attempted without a connection.
	ErrNotConnected = errors.New("not connected to influxdb")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb connection failed")
)
