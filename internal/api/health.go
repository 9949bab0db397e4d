package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each subsystem probe.
const healthCheckTimeout = 5 * time.Second

// healthResponse is the GET /health response.
type healthResponse struct {
	Status      string            `json:"status"`
	Subsystems  map[string]string `json:"subsystems"`
	LiveClients int               `json:"liveClients"`
}

// handleHealth probes each registered subsystem. Overall status is
// degraded when any probe fails; the response code stays 200 so load
// balancers distinguish "up but degraded" from "down".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Subsystems:  make(map[string]string, len(s.deps.Health)),
		LiveClients: s.deps.Hub.ClientCount(),
	}

	for name, checker := range s.deps.Health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Subsystems[name] = err.Error()
		} else {
			resp.Subsystems[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
