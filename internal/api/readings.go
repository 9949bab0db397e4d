package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsegrid/pulse-core/internal/telemetry"
)

// handleListReadings serves GET /devices/{deviceID}/readings with
// optional from, to (RFC 3339) and limit query parameters.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q := telemetry.Query{DeviceID: chi.URLParam(r, "deviceID")}

	var err error
	if q.From, err = parseTimeParam(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}
	if q.To, err = parseTimeParam(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}

	readings, err := s.deps.Readings.ListByDevice(r.Context(), q)
	if err != nil {
		if errors.Is(err, telemetry.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "from must not be after to")
			return
		}
		s.deps.Logger.Error("listing readings failed", "device_id", q.DeviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "listing readings failed")
		return
	}
	if readings == nil {
		readings = []*telemetry.Reading{}
	}

	writeJSON(w, http.StatusOK, readings)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
