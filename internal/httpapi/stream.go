package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"idlegame/engine/internal/logging"
	"idlegame/engine/internal/session"
)

const (
	streamBuffer = 16
	writeWait    = 5 * time.Second
)

func (h *HandlerSet) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || len(h.origins) == 0 {
				return true
			}
			_, ok := h.origins[origin]
			return ok
		},
	}
}

// StreamHandler upgrades to a WebSocket and pushes a view after every action.
// The first frame is the current view.
func (h *HandlerSet) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context()).With(logging.String("handler", "stream"))
		if h.game == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "game unavailable"})
			return
		}
		upgrader := h.upgrader()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			reqLogger.Warn("websocket upgrade failed", logging.Error(err))
			return
		}
		defer conn.Close()

		updates, cancel := h.game.Subscribe(streamBuffer)
		defer cancel()

		//1.- The reader only watches for the peer going away; inbound frames are ignored.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := h.writeView(conn, session.NewView(h.game.Snapshot(), h.now())); err != nil {
			reqLogger.Debug("websocket initial write failed", logging.Error(err))
			return
		}
		reqLogger.Info("websocket client connected")

		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					//2.- The session shut down.
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
						time.Now().Add(writeWait))
					return
				}
				if err := h.writeView(conn, session.NewView(update.State, h.now())); err != nil {
					reqLogger.Debug("websocket write failed", logging.Error(err))
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					reqLogger.Debug("websocket ping failed", logging.Error(err))
					return
				}
			case <-gone:
				reqLogger.Info("websocket client disconnected")
				return
			}
		}
	}
}

func (h *HandlerSet) writeView(conn *websocket.Conn, view session.View) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(view)
}
