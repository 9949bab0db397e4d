package live

// Outbound event names pushed to WebSocket subscribers.
const (
	// EventDeviceData carries one decoded reading to a device room.
	EventDeviceData = "device:data"

	// EventDeviceStatus carries a presence or status change to a
	// device room.
	EventDeviceStatus = "device:status"

	// EventDeviceAdded announces a newly registered or
	// auto-provisioned device to all clients.
	EventDeviceAdded = "device:added"

	// EventDeviceUpdated announces an edit to a device record.
	EventDeviceUpdated = "device:updated"

	// EventDeviceDeleted announces a device removal.
	EventDeviceDeleted = "device:deleted"

	// EventDeviceCommand mirrors an observed command to the device
	// room so dashboards can show commands in flight.
	EventDeviceCommand = "device:command"

	// EventDashboardUpdate is the firehose: every reading and status
	// change, sent to all clients for overview dashboards.
	EventDashboardUpdate = "dashboard:update"

	// EventPong answers a client ping.
	EventPong = "pong"

	// EventError reports a rejected client request.
	EventError = "error"
)

// Inbound control verbs clients send over the socket.
const (
	// VerbJoinDevice subscribes the client to a device room.
	VerbJoinDevice = "join:device"

	// VerbLeaveDevice unsubscribes the client from a device room.
	VerbLeaveDevice = "leave:device"

	// VerbDeviceCommand relays a command to a device via MQTT.
	VerbDeviceCommand = "device:command"

	// VerbPing is an application-level liveness probe.
	VerbPing = "ping"
)

// Message is the wire envelope for both directions of the socket.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// commandRequest is the payload of a device:command verb.
type commandRequest struct {
	DeviceID string         `json:"deviceId"`
	Command  map[string]any `json:"command"`
}

// roomRequest is the payload of join:device and leave:device verbs.
type roomRequest struct {
	DeviceID string `json:"deviceId"`
}
