package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit = 4 << 10
	wsIdle      = 2 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// GestureSocket handles GET /api/annotations/ws. Each text message is a
// pointer event: down begins a gesture, move extends it, up commits it and
// cancel abandons it. Commits and errors are answered on the same socket.
func (h *Handler) GestureSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdle))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws: read failed", slog.String("error", err.Error()))
			}
			// A dropped pointer must not leave a half-drawn gesture behind.
			h.svc.CancelGesture()
			return
		}
		if reply := h.handlePointer(msg); reply != nil {
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handlePointer(msg WSMessage) *WSReply {
	p := PointRequest{X: msg.X, Y: msg.Y}.pos()
	switch msg.Type {
	case "down":
		if err := h.svc.BeginGesture(p); err != nil {
			return &WSReply{Type: "error", Error: err.Error()}
		}
	case "move":
		h.svc.MoveGesture(p)
	case "up":
		c, err := h.svc.CommitGesture()
		if err != nil {
			return &WSReply{Type: "error", Error: err.Error()}
		}
		return &WSReply{Type: "committed", Committed: &c}
	case "cancel":
		h.svc.CancelGesture()
	default:
		return &WSReply{Type: "error", Error: "unknown message type " + msg.Type}
	}
	return nil
}
