package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The engine is deployed behind its own gateway; origin policy is
	// enforced there
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket streams the engine's event feed to an observer as JSON
// frames, optionally filtered to a single session via ?session_id=
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var filter *uuid.UUID
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		filter = &id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := s.bus.Subscribe()
	defer cancel()

	// Drain client frames so close handshakes and pings are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for e := range sub {
		if filter != nil && e.SessionID != *filter {
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}
