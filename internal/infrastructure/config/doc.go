// Package config loads and validates Pulse Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by PULSE_* environment variables. The loaded
// Config is passed by value into the components that need it; nothing in
// this package holds global state.
//
// # Sections
//
//   - database:  SQLite file path and pragmas
//   - mqtt:      broker address, credentials, QoS, reconnect policy
//   - api:       HTTP listener and timeouts
//   - websocket: live fan-out channel tuning
//   - influxdb:  optional time-series mirror for numeric measurements
//   - telemetry: reading retention window and ingestion write timeout
//   - logging:   level, format and destination
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	log := logging.New(cfg.Logging, version)
package config
