package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pingPeriod paces keepalive pings; pongWait must exceed it.
	pingPeriod = 30 * time.Second
	pongWait   = 45 * time.Second
)

// handleEvents upgrades to a websocket and streams pipeline state-transition
// events until the client disconnects or the server stops. Slow clients are
// disconnected rather than allowed to stall the event fan-out.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if !s.config.EnableCORS {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.config.CORSOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	events, cancel := s.coord.Watch()
	defer cancel()

	s.logger.Info("event stream connected", "remote", r.RemoteAddr)

	// Reader goroutine: consume control frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event stream write failed", "error", err, "remote", r.RemoteAddr)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return

		case <-s.stopChan:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
			return
		}
	}
}
