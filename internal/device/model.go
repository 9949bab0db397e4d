package device

import "time"

// Type classifies what a device measures or does.
type Type string

// Known device types. Custom covers anything the built-in set misses.
const (
	TypeTemperature Type = "temperature"
	TypeHumidity    Type = "humidity"
	TypePressure    Type = "pressure"
	TypeMotion      Type = "motion"
	TypeLight       Type = "light"
	TypeEnergy      Type = "energy"
	TypeCustom      Type = "custom"
)

// Valid reports whether t is one of the known device types.
func (t Type) Valid() bool {
	switch t {
	case TypeTemperature, TypeHumidity, TypePressure, TypeMotion,
		TypeLight, TypeEnergy, TypeCustom:
		return true
	}
	return false
}

// Status describes the administrative state of a device.
type Status string

// Known device statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusOffline  Status = "offline"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the known device statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusOffline, StatusError:
		return true
	}
	return false
}

// Device is the persistent record of a sensor or actuator known to the
// system.
//
// DeviceID is the stable external identifier carried in MQTT topics and
// payloads. It is unique and immutable once the device is created; ID
// is the internal surrogate key.
type Device struct {
	ID          string            `json:"id"`
	DeviceID    string            `json:"deviceId"`
	Name        string            `json:"name"`
	Type        Type              `json:"type"`
	Location    string            `json:"location,omitempty"`
	Status      Status            `json:"status"`
	IsConnected bool              `json:"isConnected"`
	LastSeen    *time.Time        `json:"lastSeen,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// TelemetryTouch carries the presence side of a telemetry message:
// when it arrived and the provisioning hints used if the device is
// unknown. Type defaults to custom and Location to "unknown".
type TelemetryTouch struct {
	SeenAt   time.Time
	Type     Type
	Location string
}

// StatusUpdate carries the fields a device may report on its status
// topic. Pointer fields distinguish "absent" from zero values so a
// partial report only touches what it names.
type StatusUpdate struct {
	Status      Status
	IsConnected *bool
	Type        Type
	Location    string
	Metadata    map[string]string
	SeenAt      time.Time
}

// Summary aggregates device counts for the dashboard.
type Summary struct {
	Total     int            `json:"total"`
	Connected int            `json:"connected"`
	ByStatus  map[Status]int `json:"byStatus"`
	ByType    map[Type]int   `json:"byType"`
}
