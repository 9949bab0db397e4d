package api

import (
	"net/http"
	"time"

	"github.com/pulsegrid/pulse-core/internal/device"
)

// recentWindow is the lookback for the dashboard's activity counter.
const recentWindow = 24 * time.Hour

// dashboardSummary is the GET /dashboard/summary response.
type dashboardSummary struct {
	Devices        *device.Summary `json:"devices"`
	RecentReadings int64           `json:"recentReadings"`
	LiveCount      int             `json:"liveClients"`
}

// handleDashboardSummary aggregates device counts, recent ingestion
// activity and live client numbers for overview dashboards.
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Devices.Summary(r.Context())
	if err != nil {
		s.deps.Logger.Error("dashboard summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dashboard summary failed")
		return
	}

	recent, err := s.deps.Readings.CountSince(r.Context(), time.Now().Add(-recentWindow))
	if err != nil {
		s.deps.Logger.Error("dashboard summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dashboard summary failed")
		return
	}

	writeJSON(w, http.StatusOK, dashboardSummary{
		Devices:        summary,
		RecentReadings: recent,
		LiveCount:      s.deps.Hub.ClientCount(),
	})
}
