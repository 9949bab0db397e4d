package live

import (
	"encoding/json"
	"sync"
)

// CommandPublisher relays device commands onto the MQTT side. The
// bridge adapter in cmd wiring implements it.
type CommandPublisher interface {
	SendCommand(deviceID string, command map[string]any) error
}

// hubLogger is the logging surface the hub needs.
type hubLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Hub tracks connected WebSocket clients and their device-room
// subscriptions, and fans events out to them.
//
// Delivery is best effort: a client whose send buffer is full has the
// message dropped rather than letting a slow reader stall the pipeline.
// Room targeting means a client only receives per-device events for
// devices it joined; dashboard events go to everyone.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	commands CommandPublisher
	logger   hubLogger
}

// NewHub creates an empty hub.
//
// Parameters:
//   - commands: Relay for client-issued device commands, may be nil
//     to reject commands
//   - logger: Structured logger
func NewHub(commands CommandPublisher, logger hubLogger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		commands: commands,
		logger:   logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "client_id", c.id)
}

// Unregister removes a client and all its room subscriptions, and
// closes its send channel. Safe to call more than once per client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	if known {
		delete(h.clients, c)
		for room := range c.rooms {
			h.leaveLocked(c, room)
		}
		close(c.send)
	}
	h.mu.Unlock()

	if known {
		h.logger.Debug("websocket client disconnected", "client_id", c.id)
	}
}

// Join subscribes c to the room for deviceID.
func (h *Hub) Join(c *Client, deviceID string) {
	if deviceID == "" {
		return
	}

	h.mu.Lock()
	if _, known := h.clients[c]; known {
		if h.rooms[deviceID] == nil {
			h.rooms[deviceID] = make(map[*Client]struct{})
		}
		h.rooms[deviceID][c] = struct{}{}
		c.rooms[deviceID] = struct{}{}
	}
	h.mu.Unlock()
}

// Leave unsubscribes c from the room for deviceID.
func (h *Hub) Leave(c *Client, deviceID string) {
	h.mu.Lock()
	h.leaveLocked(c, deviceID)
	h.mu.Unlock()
}

// leaveLocked removes c from a room, dropping the room when empty.
// Caller holds h.mu.
func (h *Hub) leaveLocked(c *Client, deviceID string) {
	if room, ok := h.rooms[deviceID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, deviceID)
		}
	}
	delete(c.rooms, deviceID)
}

// ToDevice sends an event to every client subscribed to deviceID's
// room. Clients not in the room never see it.
func (h *Hub) ToDevice(deviceID, event string, payload any) {
	data, err := marshalMessage(event, payload)
	if err != nil {
		h.logger.Error("encoding event failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	for c := range h.rooms[deviceID] {
		h.trySend(c, data, event)
	}
	h.mu.RUnlock()
}

// ToAll sends an event to every connected client.
func (h *Hub) ToAll(event string, payload any) {
	data, err := marshalMessage(event, payload)
	if err != nil {
		h.logger.Error("encoding event failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	for c := range h.clients {
		h.trySend(c, data, event)
	}
	h.mu.RUnlock()
}

// trySend queues data for a client without blocking. A full buffer
// means the client is reading too slowly; the message is dropped.
func (h *Hub) trySend(c *Client, data []byte, event string) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("client send buffer full, dropping event",
			"client_id", c.id,
			"event", event)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns how many clients are subscribed to deviceID.
func (h *Hub) RoomSize(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[deviceID])
}

// handleMessage dispatches one inbound control message from a client.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(c, "malformed message")
		return
	}

	switch msg.Event {
	case VerbJoinDevice:
		req, ok := decodePayload[roomRequest](msg.Payload)
		if !ok || req.DeviceID == "" {
			h.sendError(c, "join:device requires a deviceId")
			return
		}
		h.Join(c, req.DeviceID)

	case VerbLeaveDevice:
		req, ok := decodePayload[roomRequest](msg.Payload)
		if !ok || req.DeviceID == "" {
			h.sendError(c, "leave:device requires a deviceId")
			return
		}
		h.Leave(c, req.DeviceID)

	case VerbDeviceCommand:
		h.relayCommand(c, msg.Payload)

	case VerbPing:
		if data, err := marshalMessage(EventPong, nil); err == nil {
			h.mu.RLock()
			h.trySend(c, data, EventPong)
			h.mu.RUnlock()
		}

	default:
		h.sendError(c, "unknown event: "+msg.Event)
	}
}

// relayCommand forwards a client command to the device's command topic.
func (h *Hub) relayCommand(c *Client, payload any) {
	req, ok := decodePayload[commandRequest](payload)
	if !ok || req.DeviceID == "" {
		h.sendError(c, "device:command requires a deviceId")
		return
	}

	if h.commands == nil {
		h.sendError(c, "command relay unavailable")
		return
	}

	if err := h.commands.SendCommand(req.DeviceID, req.Command); err != nil {
		h.logger.Warn("command relay failed",
			"client_id", c.id,
			"device_id", req.DeviceID,
			"error", err)
		h.sendError(c, "command delivery failed")
	}
}

// sendError pushes an error event to a single client.
func (h *Hub) sendError(c *Client, reason string) {
	data, err := marshalMessage(EventError, map[string]string{"message": reason})
	if err != nil {
		return
	}
	h.mu.RLock()
	h.trySend(c, data, EventError)
	h.mu.RUnlock()
}

func marshalMessage(event string, payload any) ([]byte, error) {
	return json.Marshal(Message{Event: event, Payload: payload})
}

// decodePayload re-decodes an envelope payload into a concrete request
// type. Payloads arrive as map[string]any from the envelope decode.
func decodePayload[T any](payload any) (T, bool) {
	var out T

	raw, err := json.Marshal(payload)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}

	return out, true
}
