package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsegrid/pulse-core/internal/device"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/config"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/logging"
	"github.com/pulsegrid/pulse-core/internal/live"
	"github.com/pulsegrid/pulse-core/internal/telemetry"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// HealthChecker is anything that can report liveness. The database,
// the MQTT bridge and the InfluxDB mirror all satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps carries everything the HTTP layer needs. Optional fields may be
// nil and their endpoints degrade accordingly.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Devices  device.Repository
	Readings telemetry.Repository
	Hub      *live.Hub

	// Commands relays device commands out over MQTT. Nil disables
	// the command endpoint with 503.
	Commands live.CommandPublisher

	// Health check targets by subsystem name, reported by /health.
	Health map[string]HealthChecker
}

// Server is the HTTP front of the service: the REST API under /api/v1
// and the WebSocket upgrade endpoint.
type Server struct {
	deps   Deps
	server *http.Server
}

// New builds the server and its router.
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	apiCfg := deps.Config.API
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", apiCfg.Host, apiCfg.Port),
		Handler:      s.router(),
		ReadTimeout:  deps.Config.GetReadTimeout(),
		WriteTimeout: deps.Config.GetWriteTimeout(),
		IdleTimeout:  deps.Config.GetIdleTimeout(),
	}

	return s
}

// Start serves HTTP until Close is called. It blocks; run it in a
// goroutine and watch the returned error for startup failures.
func (s *Server) Start() error {
	s.deps.Logger.Info("http server listening", "addr", s.server.Addr)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close drains in-flight requests and stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
