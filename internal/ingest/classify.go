package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pulsegrid/pulse-core/internal/device"
)

// Kind is the routing class of an inbound MQTT message.
type Kind string

// Message kinds produced by Classify.
const (
	KindTelemetry Kind = "telemetry"
	KindStatus    Kind = "status"
	KindCommand   Kind = "command"
)

// Classified is the routed form of one inbound message, ready for the
// pipeline: the device it belongs to, its kind, and the decoded fields
// each kind cares about.
type Classified struct {
	DeviceID string
	Kind     Kind
	Topic    string

	// Timestamp is payload-derived and stamps the reading; ReceivedAt
	// is the arrival time and drives presence, so a backdated payload
	// cannot rewind a device's last-seen.
	Timestamp  time.Time
	ReceivedAt time.Time

	// Telemetry fields.
	Data map[string]any
	Unit string

	// Status fields.
	Status      device.Status
	IsConnected *bool

	// Enrichment honoured by either kind when reported.
	Metadata   map[string]string
	DeviceType device.Type
	Location   string
}

// Keys with routing meaning, stripped from telemetry data.
const (
	keyDeviceID  = "deviceId"
	keyTimestamp = "timestamp"
	keyUnit      = "unit"
	keyData      = "data"
	keyMetadata  = "metadata"
)

// Classify routes one raw MQTT message by topic shape and payload.
//
// Topic shapes recognised:
//
//	iot/{deviceId}/data          -> telemetry
//	iot/{deviceId}/status        -> status
//	iot/{deviceId}/command       -> command (observed, not processed)
//	devices/{deviceId}/telemetry -> telemetry
//
// The device identifier comes from the topic segment; a deviceId field
// in the payload is the fallback when the segment is empty or a
// wildcard leaked through. A message with neither is undeliverable and
// returns ErrNoDeviceID. An unrecognised topic returns
// ErrUnroutableTopic. Both are caller-side log-and-drop conditions.
//
// Payload handling is forgiving: a JSON object is used as-is, a JSON
// scalar becomes {"value": scalar}, and anything unparseable becomes
// {"raw": string}. Devices in the field send all three.
func Classify(topic string, payload []byte, receivedAt time.Time) (*Classified, error) {
	segments := strings.Split(topic, "/")

	kind, deviceSegment := routeTopic(segments)
	if kind == "" {
		return nil, ErrUnroutableTopic
	}

	body := decodePayload(payload)

	deviceID := deviceSegment
	if deviceID == "" || deviceID == "+" || deviceID == "#" {
		deviceID, _ = body[keyDeviceID].(string)
	}
	if deviceID == "" {
		return nil, ErrNoDeviceID
	}

	c := &Classified{
		DeviceID:   deviceID,
		Kind:       kind,
		Topic:      topic,
		Timestamp:  parseTimestamp(body[keyTimestamp], receivedAt),
		ReceivedAt: receivedAt,
	}

	switch kind {
	case KindTelemetry:
		c.Data = telemetryData(body)
		c.Unit, _ = body[keyUnit].(string)
		c.Metadata = stringMap(body[keyMetadata])
		if t, ok := body["type"].(string); ok {
			c.DeviceType = device.Type(t)
		}
		c.Location, _ = body["location"].(string)
	case KindStatus:
		if s, ok := body["status"].(string); ok {
			c.Status = device.Status(s)
		}
		if v, ok := body["connected"].(bool); ok {
			c.IsConnected = &v
		} else if v, ok := body["isConnected"].(bool); ok {
			c.IsConnected = &v
		}
		if t, ok := body["type"].(string); ok {
			c.DeviceType = device.Type(t)
		}
		c.Location, _ = body["location"].(string)
		c.Metadata = stringMap(body[keyMetadata])
	case KindCommand:
		c.Data = telemetryData(body)
	}

	return c, nil
}

// routeTopic maps topic segments to a kind and the device segment.
func routeTopic(segments []string) (Kind, string) {
	if len(segments) != 3 {
		return "", ""
	}

	switch {
	case segments[0] == "iot" && segments[2] == "data":
		return KindTelemetry, segments[1]
	case segments[0] == "iot" && segments[2] == "status":
		return KindStatus, segments[1]
	case segments[0] == "iot" && segments[2] == "command":
		return KindCommand, segments[1]
	case segments[0] == "devices" && segments[2] == "telemetry":
		return KindTelemetry, segments[1]
	}

	return "", ""
}

// decodePayload turns raw bytes into a field map without ever failing.
func decodePayload(payload []byte) map[string]any {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err == nil {
		return body
	}

	var scalar any
	if err := json.Unmarshal(payload, &scalar); err == nil {
		return map[string]any{"value": scalar}
	}

	return map[string]any{"raw": string(payload)}
}

// telemetryData extracts the measurement fields from a decoded payload.
//
// A nested "data" object wins when present; otherwise the payload
// itself is the data, minus the routing keys.
func telemetryData(body map[string]any) map[string]any {
	if nested, ok := body[keyData].(map[string]any); ok {
		return nested
	}

	data := make(map[string]any, len(body))
	for k, v := range body {
		switch k {
		case keyDeviceID, keyTimestamp, keyUnit, keyMetadata:
			continue
		}
		data[k] = v
	}

	return data
}

// parseTimestamp accepts RFC 3339 strings and unix epoch numbers
// (seconds or milliseconds), falling back to the receive time.
func parseTimestamp(v any, fallback time.Time) time.Time {
	switch ts := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t
		}
	case float64:
		// Heuristic: values past the year 2100 in seconds are
		// really milliseconds.
		if ts > 4_102_444_800 {
			return time.UnixMilli(int64(ts))
		}
		return time.Unix(int64(ts), 0)
	}

	return fallback
}

// stringMap coerces a decoded JSON object into string key-value pairs,
// skipping non-string values.
func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}

	out := make(map[string]string, len(obj))
	for k, val := range obj {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}

	return out
}
