package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pulsegrid/pulse-core/internal/live"
)

// defaultSendBuffer is used when the configured buffer size is unset.
const defaultSendBuffer = 256

// handleWebSocket upgrades the connection and hands it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(s.deps.Config.API.CORS.AllowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.deps.Logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	buffer := s.deps.Config.WebSocket.SendBufferSize
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}

	client := live.NewClient(s.deps.Hub, conn, buffer)
	s.deps.Logger.Debug("websocket client attached",
		"client_id", client.ID(),
		"remote", r.RemoteAddr)
}
