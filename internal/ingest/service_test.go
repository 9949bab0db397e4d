package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsegrid/pulse-core/internal/device"
	"github.com/pulsegrid/pulse-core/internal/live"
	"github.com/pulsegrid/pulse-core/internal/telemetry"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fakeDevices tracks touched devices in memory.
type fakeDevices struct {
	mu         sync.Mutex
	known      map[string]*device.Device
	touches    []string
	lastTouch  device.TelemetryTouch
	lastStatus device.StatusUpdate
	err        error
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{known: make(map[string]*device.Device)}
}

func (f *fakeDevices) TouchTelemetry(_ context.Context, deviceID string, touch device.TelemetryTouch) (*device.Device, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}

	seenAt := touch.SeenAt
	f.touches = append(f.touches, deviceID)
	f.lastTouch = touch
	if d, ok := f.known[deviceID]; ok {
		d.LastSeen = &seenAt
		return d, false, nil
	}

	d := &device.Device{DeviceID: deviceID, Name: deviceID, Type: device.TypeCustom,
		Status: device.StatusActive, IsConnected: true, LastSeen: &seenAt}
	f.known[deviceID] = d
	return d, true, nil
}

func (f *fakeDevices) ApplyStatus(_ context.Context, deviceID string, upd device.StatusUpdate) (*device.Device, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}

	f.lastStatus = upd
	d, ok := f.known[deviceID]
	if !ok {
		d = &device.Device{DeviceID: deviceID, Name: deviceID, Type: device.TypeCustom}
		f.known[deviceID] = d
	}
	if upd.Status != "" {
		d.Status = upd.Status
	}
	if upd.IsConnected != nil {
		d.IsConnected = *upd.IsConnected
	}
	return d, !ok, nil
}

func (f *fakeDevices) Create(context.Context, *device.Device) error { return nil }
func (f *fakeDevices) GetByDeviceID(context.Context, string) (*device.Device, error) {
	return nil, device.ErrNotFound
}
func (f *fakeDevices) List(context.Context) ([]*device.Device, error) { return nil, nil }
func (f *fakeDevices) Update(context.Context, string, *device.Device) (*device.Device, error) {
	return nil, device.ErrNotFound
}
func (f *fakeDevices) Delete(context.Context, string) error { return nil }
func (f *fakeDevices) Summary(context.Context) (*device.Summary, error) {
	return &device.Summary{}, nil
}

// fakeReadings records inserts, optionally failing them.
type fakeReadings struct {
	mu       sync.Mutex
	inserted []*telemetry.Reading
	err      error
}

func (f *fakeReadings) Insert(_ context.Context, r *telemetry.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeReadings) ListByDevice(context.Context, telemetry.Query) ([]*telemetry.Reading, error) {
	return nil, nil
}
func (f *fakeReadings) CountSince(context.Context, time.Time) (int64, error)     { return 0, nil }
func (f *fakeReadings) PurgeOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

// broadcastRecord is one captured fan-out call.
type broadcastRecord struct {
	deviceID string // empty for ToAll
	event    string
	payload  any
}

type fakeBroadcast struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (f *fakeBroadcast) ToDevice(deviceID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastRecord{deviceID: deviceID, event: event, payload: payload})
}

func (f *fakeBroadcast) ToAll(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastRecord{event: event, payload: payload})
}

func (f *fakeBroadcast) byEvent(event string) []broadcastRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []broadcastRecord
	for _, e := range f.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeMirror struct {
	mu     sync.Mutex
	writes int
}

func (f *fakeMirror) WriteReading(string, map[string]any, string, time.Time) {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
}

func newTestService(devices *fakeDevices, readings *fakeReadings, bc *fakeBroadcast, mirror Mirror) *Service {
	return New(devices, readings, bc, mirror, 5*time.Second, nopLogger{})
}

func TestHandleTelemetryFullFlow(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	mirror := &fakeMirror{}
	svc := newTestService(devices, readings, bc, mirror)

	err := svc.Handle("iot/sensor-01/data", []byte(`{"temperature":21.5,"unit":"celsius"}`))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	// Presence touched and device auto-provisioned.
	if len(devices.touches) != 1 || devices.touches[0] != "sensor-01" {
		t.Errorf("touches = %v, want [sensor-01]", devices.touches)
	}
	if added := bc.byEvent(live.EventDeviceAdded); len(added) != 1 {
		t.Errorf("device:added events = %d, want 1", len(added))
	}

	// Reading stored with decoded fields.
	if len(readings.inserted) != 1 {
		t.Fatalf("inserted readings = %d, want 1", len(readings.inserted))
	}
	r := readings.inserted[0]
	if r.DeviceID != "sensor-01" || r.Data["temperature"] != 21.5 || r.Unit != "celsius" {
		t.Errorf("inserted reading = %+v", r)
	}

	// Mirrored once.
	if mirror.writes != 1 {
		t.Errorf("mirror writes = %d, want 1", mirror.writes)
	}

	// Fanned out to the device room and the dashboard.
	if data := bc.byEvent(live.EventDeviceData); len(data) != 1 || data[0].deviceID != "sensor-01" {
		t.Errorf("device:data events = %+v", data)
	}
	if dash := bc.byEvent(live.EventDashboardUpdate); len(dash) != 1 {
		t.Errorf("dashboard:update events = %d, want 1", len(dash))
	}
}

func TestHandleTelemetryKnownDeviceNoAddedEvent(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	for i := 0; i < 3; i++ {
		if err := svc.Handle("iot/sensor-01/data", []byte(`{"v":1}`)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if added := bc.byEvent(live.EventDeviceAdded); len(added) != 1 {
		t.Errorf("device:added events = %d across 3 messages, want exactly 1", len(added))
	}
}

func TestHandleFanOutSurvivesStorageFailure(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{err: errors.New("disk full")}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	if err := svc.Handle("iot/sensor-01/data", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if data := bc.byEvent(live.EventDeviceData); len(data) != 1 {
		t.Errorf("device:data events = %d despite storage failure, want 1", len(data))
	}
	if dash := bc.byEvent(live.EventDashboardUpdate); len(dash) != 1 {
		t.Errorf("dashboard:update events = %d despite storage failure, want 1", len(dash))
	}
}

func TestHandleFanOutSurvivesPresenceFailure(t *testing.T) {
	devices := newFakeDevices()
	devices.err = errors.New("database locked")
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	if err := svc.Handle("iot/sensor-01/data", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if data := bc.byEvent(live.EventDeviceData); len(data) != 1 {
		t.Errorf("device:data events = %d despite presence failure, want 1", len(data))
	}
	if len(readings.inserted) != 1 {
		t.Errorf("inserted readings = %d despite presence failure, want 1", len(readings.inserted))
	}
}

func TestHandleStatusFlow(t *testing.T) {
	devices := newFakeDevices()
	seed := &device.Device{DeviceID: "sensor-01", Name: "sensor-01", Type: device.TypeCustom,
		Status: device.StatusActive, IsConnected: true}
	devices.known["sensor-01"] = seed

	bc := &fakeBroadcast{}
	svc := newTestService(devices, &fakeReadings{}, bc, nil)

	payload := `{"status":"offline","connected":false}`
	if err := svc.Handle("iot/sensor-01/status", []byte(payload)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if seed.Status != device.StatusOffline || seed.IsConnected {
		t.Errorf("device after status = %+v, want offline and disconnected", seed)
	}
	if ev := bc.byEvent(live.EventDeviceStatus); len(ev) != 1 || ev[0].deviceID != "sensor-01" {
		t.Errorf("device:status events = %+v", ev)
	}
	if added := bc.byEvent(live.EventDeviceAdded); len(added) != 0 {
		t.Errorf("device:added events = %d for known device, want 0", len(added))
	}
}

func TestHandleBackdatedTimestampKeepsPresenceFresh(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	backdated, _ := time.Parse(time.RFC3339, "2020-01-01T00:00:00Z")
	start := time.Now().UTC()

	payload := `{"temperature":21.5,"timestamp":"2020-01-01T00:00:00Z"}`
	if err := svc.Handle("iot/sensor-01/data", []byte(payload)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	// The reading keeps the payload timestamp.
	if len(readings.inserted) != 1 {
		t.Fatalf("inserted readings = %d, want 1", len(readings.inserted))
	}
	if !readings.inserted[0].Timestamp.Equal(backdated) {
		t.Errorf("reading timestamp = %v, want %v", readings.inserted[0].Timestamp, backdated)
	}

	// Presence does not rewind to it.
	if devices.lastTouch.SeenAt.Before(start) {
		t.Errorf("touch SeenAt = %v, rewound before arrival at %v", devices.lastTouch.SeenAt, start)
	}

	status := `{"status":"active","timestamp":"2020-01-01T00:00:00Z"}`
	if err := svc.Handle("iot/sensor-01/status", []byte(status)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if devices.lastStatus.SeenAt.Before(start) {
		t.Errorf("status SeenAt = %v, rewound before arrival at %v", devices.lastStatus.SeenAt, start)
	}
}

func TestHandleTelemetryReadingCarriesMetadata(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	payload := `{"temperature":21.5,"unit":"celsius","metadata":{"firmware":"1.2.0","rssi":-70}}`
	if err := svc.Handle("iot/sensor-01/data", []byte(payload)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(readings.inserted) != 1 {
		t.Fatalf("inserted readings = %d, want 1", len(readings.inserted))
	}
	r := readings.inserted[0]
	if r.Metadata["firmware"] != "1.2.0" {
		t.Errorf("reading metadata = %v, want firmware entry", r.Metadata)
	}
	if _, ok := r.Data["metadata"]; ok {
		t.Errorf("reading data = %v, metadata key should be lifted out", r.Data)
	}

	// Fan-out carries the measurement map, not the envelope fields.
	data := bc.byEvent(live.EventDeviceData)
	if len(data) != 1 {
		t.Fatalf("device:data events = %d, want 1", len(data))
	}
	event, ok := data[0].payload.(map[string]any)
	if !ok {
		t.Fatalf("device:data payload = %T, want map", data[0].payload)
	}
	measurements, ok := event["data"].(map[string]any)
	if !ok {
		t.Fatalf("device:data data field = %T, want map", event["data"])
	}
	if measurements["temperature"] != 21.5 {
		t.Errorf("event measurements = %v, want temperature 21.5", measurements)
	}
	for _, k := range []string{"metadata", "unit", "deviceId", "timestamp"} {
		if _, ok := measurements[k]; ok {
			t.Errorf("event measurements contain envelope key %q", k)
		}
	}
}

func TestHandleCommandRebroadcastsWithoutStoring(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	if err := svc.Handle("iot/sensor-01/command", []byte(`{"action":"reboot"}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(readings.inserted) != 0 {
		t.Errorf("command message stored %d readings, want 0", len(readings.inserted))
	}
	if len(devices.touches) != 0 {
		t.Errorf("command message touched presence %d times, want 0", len(devices.touches))
	}
	if ev := bc.byEvent(live.EventDeviceCommand); len(ev) != 1 || ev[0].deviceID != "sensor-01" {
		t.Errorf("device:command events = %+v, want one room-scoped event", ev)
	}
	if dash := bc.byEvent(live.EventDashboardUpdate); len(dash) != 1 {
		t.Errorf("dashboard:update events = %d for command, want 1", len(dash))
	}
}

func TestHandleDropsMalformedWithoutError(t *testing.T) {
	devices := newFakeDevices()
	readings := &fakeReadings{}
	bc := &fakeBroadcast{}
	svc := newTestService(devices, readings, bc, nil)

	if err := svc.Handle("some/other/topic", []byte(`{}`)); err != nil {
		t.Errorf("Handle() unroutable topic error = %v, want nil", err)
	}
	if err := svc.Handle("iot//data", []byte(`{}`)); err != nil {
		t.Errorf("Handle() missing device id error = %v, want nil", err)
	}

	// Dropped messages leave no trace: no writes, no broadcasts.
	if len(devices.touches) != 0 || len(readings.inserted) != 0 || len(bc.events) != 0 {
		t.Errorf("dropped messages produced touches=%d readings=%d events=%d, want all 0",
			len(devices.touches), len(readings.inserted), len(bc.events))
	}
}

func TestHandleConcurrentFirstMessages(t *testing.T) {
	devices := newFakeDevices()
	bc := &fakeBroadcast{}
	svc := newTestService(devices, &fakeReadings{}, bc, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Handle("iot/sensor-01/data", []byte(`{"v":1}`))
		}()
	}
	wg.Wait()

	if added := bc.byEvent(live.EventDeviceAdded); len(added) != 1 {
		t.Errorf("device:added events = %d under concurrent first messages, want exactly 1", len(added))
	}
}
