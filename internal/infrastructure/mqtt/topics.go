package mqtt

import "strings"

// Topic conventions for the telemetry ingestion pipeline.
//
// Device-originated traffic follows <namespace>/<deviceId>/<suffix>:
//
//	iot/{deviceId}/data          telemetry readings
//	iot/{deviceId}/status        connectivity/status updates
//	iot/{deviceId}/command       server -> device commands (write-only here)
//	devices/{deviceId}/telemetry legacy telemetry channel
const (
	// SystemStatusTopic carries the service's own online/offline status,
	// including the LWT published by the broker on unexpected disconnect.
	SystemStatusTopic = "pulse/system/status"

	// deviceNamespace is the primary namespace for device topics.
	deviceNamespace = "iot"

	// commandSuffix is the topic suffix for the device command channel.
	commandSuffix = "command"
)

// DefaultSubscriptions returns the topic patterns the ingestion pipeline
// subscribes to on startup (and re-subscribes after reconnect). The
// single-level wildcard matches the device identifier segment.
func DefaultSubscriptions() []string {
	return []string{
		"iot/+/data",
		"iot/+/status",
		"iot/+/command",
		"devices/+/telemetry",
	}
}

// CommandTopic returns the command channel topic for a device.
func CommandTopic(deviceID string) string {
	return deviceNamespace + "/" + deviceID + "/" + commandSuffix
}

// TopicSegments splits a topic into its slash-delimited segments.
func TopicSegments(topic string) []string {
	return strings.Split(topic, "/")
}
