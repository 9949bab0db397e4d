package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsegrid/pulse-core/internal/device"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/config"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/logging"
	"github.com/pulsegrid/pulse-core/internal/live"
	"github.com/pulsegrid/pulse-core/internal/telemetry"
)

// memDevices is an in-memory device.Repository for handler tests.
type memDevices struct {
	devices map[string]*device.Device
	failAll bool
}

func newMemDevices() *memDevices {
	return &memDevices{devices: make(map[string]*device.Device)}
}

var errBackend = errors.New("backend unavailable")

func (m *memDevices) Create(_ context.Context, d *device.Device) error {
	if m.failAll {
		return errBackend
	}
	if d.DeviceID == "" {
		return device.ErrEmptyDeviceID
	}
	if !d.Type.Valid() {
		return device.ErrInvalidType
	}
	if _, ok := m.devices[d.DeviceID]; ok {
		return device.ErrDuplicateID
	}
	if d.Status == "" {
		d.Status = device.StatusActive
	}
	d.ID = "id-" + d.DeviceID
	m.devices[d.DeviceID] = d
	return nil
}

func (m *memDevices) GetByDeviceID(_ context.Context, deviceID string) (*device.Device, error) {
	if m.failAll {
		return nil, errBackend
	}
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, device.ErrNotFound
	}
	return d, nil
}

func (m *memDevices) List(context.Context) ([]*device.Device, error) {
	if m.failAll {
		return nil, errBackend
	}
	out := make([]*device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memDevices) Update(_ context.Context, deviceID string, d *device.Device) (*device.Device, error) {
	if d.DeviceID != "" && d.DeviceID != deviceID {
		return nil, device.ErrImmutableDeviceID
	}
	current, ok := m.devices[deviceID]
	if !ok {
		return nil, device.ErrNotFound
	}
	if d.Name != "" {
		current.Name = d.Name
	}
	return current, nil
}

func (m *memDevices) Delete(_ context.Context, deviceID string) error {
	if _, ok := m.devices[deviceID]; !ok {
		return device.ErrNotFound
	}
	delete(m.devices, deviceID)
	return nil
}

func (m *memDevices) TouchTelemetry(context.Context, string, device.TelemetryTouch) (*device.Device, bool, error) {
	return nil, false, errBackend
}

func (m *memDevices) ApplyStatus(context.Context, string, device.StatusUpdate) (*device.Device, bool, error) {
	return nil, false, errBackend
}

func (m *memDevices) Summary(context.Context) (*device.Summary, error) {
	if m.failAll {
		return nil, errBackend
	}
	return &device.Summary{Total: len(m.devices)}, nil
}

// memReadings is a canned telemetry.Repository.
type memReadings struct {
	readings []*telemetry.Reading
	lastQ    telemetry.Query
}

func (m *memReadings) Insert(context.Context, *telemetry.Reading) error { return nil }

func (m *memReadings) ListByDevice(_ context.Context, q telemetry.Query) ([]*telemetry.Reading, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, telemetry.ErrInvalidRange
	}
	m.lastQ = q
	return m.readings, nil
}

func (m *memReadings) CountSince(context.Context, time.Time) (int64, error) {
	return int64(len(m.readings)), nil
}

func (m *memReadings) PurgeOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeCommands struct {
	deviceID string
	command  map[string]any
	err      error
}

func (f *fakeCommands) SendCommand(deviceID string, command map[string]any) error {
	f.deviceID = deviceID
	f.command = command
	return f.err
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

// newTestServer builds a server on in-memory backends. Mutate deps via
// the returned fakes before issuing requests.
func newTestServer(t *testing.T, commands live.CommandPublisher) (*Server, *memDevices, *memReadings) {
	t.Helper()

	devices := newMemDevices()
	readings := &memReadings{}
	logger := logging.Default()

	srv := New(Deps{
		Config:   &config.Config{},
		Logger:   logger,
		Devices:  devices,
		Readings: readings,
		Hub:      live.NewHub(nil, logger),
		Commands: commands,
	})

	return srv, devices, readings
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetDevice(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices", map[string]any{
		"deviceId": "sensor-01",
		"name":     "Living Room",
		"type":     "temperature",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /devices status = %d, want 201; body %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/sensor-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /devices/sensor-01 status = %d, want 200", rec.Code)
	}

	var d device.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.Name != "Living Room" || d.Type != device.TypeTemperature {
		t.Errorf("device = %+v", d)
	}
}

func TestCreateDeviceConflict(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	body := map[string]any{"deviceId": "sensor-01", "type": "custom"}
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices", body); rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}
}

func TestCreateDeviceRejectsBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices/ghost", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET missing device status = %d, want 404", rec.Code)
	}
}

func TestDeleteDevice(t *testing.T) {
	srv, devices, _ := newTestServer(t, nil)
	devices.devices["sensor-01"] = &device.Device{DeviceID: "sensor-01"}

	if rec := doRequest(t, srv, http.MethodDelete, "/api/v1/devices/sensor-01", nil); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodDelete, "/api/v1/devices/sensor-01", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}
}

func TestListReadingsQueryParams(t *testing.T) {
	srv, _, readings := newTestServer(t, nil)
	readings.readings = []*telemetry.Reading{
		{DeviceID: "sensor-01", Data: map[string]any{"v": 1.0}},
	}

	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/devices/sensor-01/readings?from=2026-06-14T00:00:00Z&to=2026-06-15T00:00:00Z&limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET readings status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if readings.lastQ.Limit != 5 || readings.lastQ.From.IsZero() || readings.lastQ.To.IsZero() {
		t.Errorf("query passed to repository = %+v", readings.lastQ)
	}
}

func TestListReadingsRejectsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
	}{
		{"bad from", "/api/v1/devices/d/readings?from=yesterday"},
		{"bad limit", "/api/v1/devices/d/readings?limit=zero"},
		{"negative limit", "/api/v1/devices/d/readings?limit=-1"},
		{"inverted range", "/api/v1/devices/d/readings?from=2026-06-15T00:00:00Z&to=2026-06-14T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := doRequest(t, srv, http.MethodGet, tt.path, nil); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSendCommand(t *testing.T) {
	commands := &fakeCommands{}
	srv, _, _ := newTestServer(t, commands)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/sensor-01/command",
		map[string]any{"action": "reboot"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST command status = %d, want 202", rec.Code)
	}
	if commands.deviceID != "sensor-01" || commands.command["action"] != "reboot" {
		t.Errorf("relayed command = %q %v", commands.deviceID, commands.command)
	}
}

func TestSendCommandWithoutRelay(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/sensor-01/command",
		map[string]any{"action": "reboot"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST command without relay status = %d, want 503", rec.Code)
	}
}

func TestSendCommandDeliveryFailure(t *testing.T) {
	commands := &fakeCommands{err: errors.New("broker down")}
	srv, _, _ := newTestServer(t, commands)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/sensor-01/command",
		map[string]any{"action": "reboot"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("POST command delivery failure status = %d, want 502", rec.Code)
	}
}

func TestDashboardSummary(t *testing.T) {
	srv, devices, _ := newTestServer(t, nil)
	devices.devices["a"] = &device.Device{DeviceID: "a"}
	devices.devices["b"] = &device.Device{DeviceID: "b"}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/dashboard/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET summary status = %d, want 200", rec.Code)
	}

	var resp dashboardSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Devices == nil || resp.Devices.Total != 2 {
		t.Errorf("summary devices = %+v, want total 2", resp.Devices)
	}
}

func TestHealthReportsSubsystems(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	srv.deps.Health = map[string]HealthChecker{
		"database": fakeChecker{},
		"mqtt":     fakeChecker{err: errors.New("broker unreachable")},
	}

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("health status = %q, want degraded", resp.Status)
	}
	if resp.Subsystems["database"] != "ok" {
		t.Errorf("database subsystem = %q, want ok", resp.Subsystems["database"])
	}
}
