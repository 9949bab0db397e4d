package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsegrid/pulse-core/internal/device"
	"github.com/pulsegrid/pulse-core/internal/live"
)

// maxBodySize bounds request bodies on the device endpoints.
const maxBodySize = 64 << 10 // 64KB

// createDeviceRequest is the POST /devices body.
type createDeviceRequest struct {
	DeviceID string            `json:"deviceId"`
	Name     string            `json:"name"`
	Type     device.Type       `json:"type"`
	Location string            `json:"location"`
	Status   device.Status     `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Devices.List(r.Context())
	if err != nil {
		s.deps.Logger.Error("listing devices failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing devices failed")
		return
	}
	if devices == nil {
		devices = []*device.Device{}
	}

	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		req.Name = req.DeviceID
	}
	if req.Type == "" {
		req.Type = device.TypeCustom
	}

	d := &device.Device{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Type:     req.Type,
		Location: req.Location,
		Status:   req.Status,
		Metadata: req.Metadata,
	}

	if err := s.deps.Devices.Create(r.Context(), d); err != nil {
		switch {
		case errors.Is(err, device.ErrDuplicateID):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, device.ErrEmptyDeviceID),
			errors.Is(err, device.ErrInvalidType),
			errors.Is(err, device.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.deps.Logger.Error("creating device failed", "error", err)
			writeError(w, http.StatusInternalServerError, "creating device failed")
		}
		return
	}

	s.deps.Hub.ToAll(live.EventDeviceAdded, d)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	d, err := s.deps.Devices.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.deps.Logger.Error("fetching device failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "fetching device failed")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req createDeviceRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	d, err := s.deps.Devices.Update(r.Context(), deviceID, &device.Device{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Type:     req.Type,
		Location: req.Location,
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotFound):
			writeError(w, http.StatusNotFound, "device not found")
		case errors.Is(err, device.ErrImmutableDeviceID),
			errors.Is(err, device.ErrInvalidType),
			errors.Is(err, device.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.deps.Logger.Error("updating device failed", "device_id", deviceID, "error", err)
			writeError(w, http.StatusInternalServerError, "updating device failed")
		}
		return
	}

	s.deps.Hub.ToAll(live.EventDeviceUpdated, d)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if err := s.deps.Devices.Delete(r.Context(), deviceID); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.deps.Logger.Error("deleting device failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "deleting device failed")
		return
	}

	s.deps.Hub.ToAll(live.EventDeviceDeleted, map[string]string{"deviceId": deviceID})
	w.WriteHeader(http.StatusNoContent)
}

// handleSendCommand relays a JSON command to the device over MQTT.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if s.deps.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, "command relay unavailable")
		return
	}

	var command map[string]any
	if !s.decodeBody(w, r, &command) {
		return
	}

	if err := s.deps.Commands.SendCommand(deviceID, command); err != nil {
		s.deps.Logger.Warn("command delivery failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusBadGateway, "command delivery failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// decodeBody parses a bounded JSON request body, answering 400 on
// failure. Returns false when the response has been written.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
