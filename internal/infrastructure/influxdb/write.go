package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// readingMeasurement is the measurement name for mirrored telemetry points.
const readingMeasurement = "reading"

// WriteReading mirrors the numeric fields of a telemetry reading as a
// single point tagged by device.
//
// Non-numeric values in data are skipped: the mirror only carries
// measurements that make sense to graph. A reading with no numeric
// fields produces no point at all.
//
// The write is non-blocking: the point is queued for batched delivery
// and errors surface via the SetOnError callback.
//
// Parameters:
//   - deviceID: Stable device identifier, applied as the device_id tag
//   - data: Decoded reading payload (field name -> value)
//   - unit: Optional unit string, applied as a tag when non-empty
//   - ts: Reading timestamp
func (c *Client) WriteReading(deviceID string, data map[string]any, unit string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any, len(data))
	for name, value := range data {
		if v, ok := numericValue(value); ok {
			fields[name] = v
		}
	}
	if len(fields) == 0 {
		return
	}

	tags := map[string]string{"device_id": deviceID}
	if unit != "" {
		tags["unit"] = unit
	}

	point := influxdb2.NewPoint(readingMeasurement, tags, fields, ts)
	c.writeAPI.WritePoint(point)
}

// Flush forces all pending writes to be sent immediately.
//
// Useful before shutdown or when immediate persistence is required.
func (c *Client) Flush() {
	if c.writeAPI != nil {
		c.writeAPI.Flush()
	}
}

// numericValue normalises a decoded JSON value to float64.
//
// JSON numbers decode as float64, but payloads that passed through
// other Go code may carry native int types.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
