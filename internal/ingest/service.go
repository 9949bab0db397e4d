package ingest

import (
	"context"
	"time"

	"github.com/pulsegrid/pulse-core/internal/device"
	"github.com/pulsegrid/pulse-core/internal/live"
	"github.com/pulsegrid/pulse-core/internal/telemetry"
)

// Broadcaster is the fan-out surface the pipeline pushes events to.
// *live.Hub implements it.
type Broadcaster interface {
	ToDevice(deviceID, event string, payload any)
	ToAll(event string, payload any)
}

// Mirror receives a non-blocking copy of each reading. The InfluxDB
// client implements it; a nil mirror disables mirroring.
type Mirror interface {
	WriteReading(deviceID string, data map[string]any, unit string, ts time.Time)
}

// serviceLogger is the logging surface the pipeline needs.
type serviceLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service is the ingestion pipeline: it takes raw MQTT messages from
// the bridge, classifies them, updates device presence, persists
// readings, and fans events out to live subscribers.
//
// Persistence failures are contained: a reading that cannot be stored
// is logged and dropped, but presence and fan-out still happen, so a
// wedged disk degrades history without blinding live dashboards.
type Service struct {
	devices   device.Repository
	readings  telemetry.Repository
	mirror    Mirror
	broadcast Broadcaster
	logger    serviceLogger

	// writeTimeout bounds each storage write so a stalled database
	// cannot back messages up into the MQTT client.
	writeTimeout time.Duration

	// locks serialises presence writes per device so status and
	// telemetry for one device apply in arrival order.
	locks keyedLock
}

// New creates the ingestion service.
//
// Parameters:
//   - devices: Device registry for presence tracking
//   - readings: Reading store
//   - broadcast: Live fan-out hub
//   - mirror: Optional time-series mirror, may be nil
//   - writeTimeout: Per-write storage deadline
//   - logger: Structured logger
func New(devices device.Repository, readings telemetry.Repository, broadcast Broadcaster,
	mirror Mirror, writeTimeout time.Duration, logger serviceLogger) *Service {
	return &Service{
		devices:      devices,
		readings:     readings,
		mirror:       mirror,
		broadcast:    broadcast,
		logger:       logger,
		writeTimeout: writeTimeout,
	}
}

// Handle processes one raw MQTT message. It matches the bridge's
// message handler signature and never returns an error for malformed
// input: undeliverable messages are logged and dropped so one bad
// publisher cannot disturb the subscription.
func (s *Service) Handle(topic string, payload []byte) error {
	c, err := Classify(topic, payload, time.Now().UTC())
	if err != nil {
		s.logger.Warn("dropping unroutable message",
			"topic", topic,
			"reason", err,
			"bytes", len(payload))
		return nil
	}

	switch c.Kind {
	case KindTelemetry:
		s.handleTelemetry(c)
	case KindStatus:
		s.handleStatus(c)
	case KindCommand:
		// Commands flow broker -> device and are never stored, but
		// they are re-broadcast so dashboards can show them in
		// flight.
		s.broadcast.ToDevice(c.DeviceID, live.EventDeviceCommand, map[string]any{
			"deviceId":  c.DeviceID,
			"topic":     c.Topic,
			"timestamp": c.Timestamp,
			"command":   c.Data,
		})
		s.broadcast.ToAll(live.EventDashboardUpdate, map[string]any{
			"type":      "command",
			"deviceId":  c.DeviceID,
			"timestamp": c.Timestamp,
			"data":      c.Data,
		})
	}

	return nil
}

func (s *Service) handleTelemetry(c *Classified) {
	dev, created := s.touchPresence(c)

	s.persistReading(c)

	if s.mirror != nil {
		s.mirror.WriteReading(c.DeviceID, c.Data, c.Unit, c.Timestamp)
	}

	if created && dev != nil {
		s.broadcast.ToAll(live.EventDeviceAdded, dev)
	}

	dataEvent := map[string]any{
		"deviceId":  c.DeviceID,
		"topic":     c.Topic,
		"timestamp": c.Timestamp,
		"data":      c.Data,
	}
	s.broadcast.ToDevice(c.DeviceID, live.EventDeviceData, dataEvent)
	s.broadcast.ToAll(live.EventDashboardUpdate, map[string]any{
		"type":      "data",
		"deviceId":  c.DeviceID,
		"timestamp": c.Timestamp,
		"data":      c.Data,
	})
}

func (s *Service) handleStatus(c *Classified) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	s.locks.Lock(c.DeviceID)
	dev, created, err := s.devices.ApplyStatus(ctx, c.DeviceID, device.StatusUpdate{
		Status:      c.Status,
		IsConnected: c.IsConnected,
		Type:        c.DeviceType,
		Location:    c.Location,
		Metadata:    c.Metadata,
		SeenAt:      c.ReceivedAt,
	})
	s.locks.Unlock(c.DeviceID)
	if err != nil {
		s.logger.Error("status update failed",
			"device_id", c.DeviceID,
			"error", err)
		return
	}

	if created {
		s.broadcast.ToAll(live.EventDeviceAdded, dev)
	}

	statusEvent := map[string]any{
		"deviceId":    dev.DeviceID,
		"status":      dev.Status,
		"isConnected": dev.IsConnected,
		"timestamp":   c.Timestamp,
	}
	s.broadcast.ToDevice(c.DeviceID, live.EventDeviceStatus, statusEvent)
	s.broadcast.ToAll(live.EventDashboardUpdate, map[string]any{
		"type":        "status",
		"deviceId":    dev.DeviceID,
		"status":      dev.Status,
		"isConnected": dev.IsConnected,
		"timestamp":   c.Timestamp,
	})
}

// touchPresence refreshes the device's last-seen state, provisioning
// unknown devices. A failure here is logged and swallowed: presence is
// best effort and must not block the reading or the fan-out.
//
// Last-seen is the arrival time, not the payload timestamp: the
// reading may be backdated, the device's presence may not.
func (s *Service) touchPresence(c *Classified) (*device.Device, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	s.locks.Lock(c.DeviceID)
	dev, created, err := s.devices.TouchTelemetry(ctx, c.DeviceID, device.TelemetryTouch{
		SeenAt:   c.ReceivedAt,
		Type:     c.DeviceType,
		Location: c.Location,
	})
	s.locks.Unlock(c.DeviceID)
	if err != nil {
		s.logger.Error("presence update failed",
			"device_id", c.DeviceID,
			"error", err)
		return nil, false
	}

	return dev, created
}

// persistReading stores the reading, logging and dropping on failure.
func (s *Service) persistReading(c *Classified) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	reading := &telemetry.Reading{
		DeviceID:  c.DeviceID,
		Timestamp: c.Timestamp,
		Data:      c.Data,
		Unit:      c.Unit,
		Metadata:  c.Metadata,
	}
	if err := s.readings.Insert(ctx, reading); err != nil {
		s.logger.Error("reading write failed, dropping",
			"device_id", c.DeviceID,
			"topic", c.Topic,
			"error", err)
	}
}
