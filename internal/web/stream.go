package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The bridge fronts internal tooling; the UI origin is not fixed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// screenFrame is one websocket push.
type screenFrame struct {
	ScreenContent string    `json:"screen_content"`
	Connected     bool      `json:"connected"`
	Timestamp     time.Time `json:"timestamp"`
}

// handleScreenStream upgrades to a websocket and pushes the screen text
// whenever it changes, polled at StreamInterval. The stream ends when the
// client goes away, the session disappears, or the emulator disconnects.
func (s *Server) handleScreenStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(r.URL.Query().Get("session_id"))
	if !ok {
		errorJSON(w, http.StatusNotFound, "Invalid session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reader loop solely to observe the close handshake.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.StreamInterval)
	defer ticker.Stop()

	var last string
	first := true
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		sess.Touch()
		sess.Lock()
		text, err := sess.Engine.GetScreen(r.Context())
		connected := sess.Engine.Connected()
		sess.Unlock()

		if err != nil || !connected {
			_ = conn.WriteJSON(screenFrame{Connected: false, Timestamp: time.Now()})
			return
		}

		if first || text != last {
			frame := screenFrame{ScreenContent: text, Connected: true, Timestamp: time.Now()}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			last = text
			first = false
		}
	}
}
