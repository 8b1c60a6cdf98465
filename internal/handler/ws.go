package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ioms/backend/internal/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// WSHandler upgrades authenticated requests to websockets and streams the
// caller's realtime events.
type WSHandler struct {
	bus      *realtime.Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates the handler. An empty allowedOrigins accepts any origin.
func NewWSHandler(bus *realtime.Bus, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "error", err)
		return
	}

	session := h.bus.Subscribe(a.CompanyID, a.UserID)
	log := h.logger.With("session_id", session.ID, "user_id", a.UserID)
	log.Info("websocket client connected")

	done := make(chan struct{})
	go h.readPump(conn, session, done)
	h.writePump(conn, session, done)
	log.Info("websocket client disconnected")
}

// readPump discards client frames and tracks liveness. It closes the session
// when the client goes away.
func (h *WSHandler) readPump(conn *websocket.Conn, session *realtime.Session, done chan<- struct{}) {
	defer close(done)
	defer session.Close()
	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, session *realtime.Session, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		session.Close()
		conn.Close()
	}()

	if err := h.send(conn, map[string]any{"kind": "session.created", "session_id": session.ID}); err != nil {
		return
	}
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				// logout or shutdown
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := h.send(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WSHandler) send(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := conn.WriteJSON(v)
	if err != nil {
		h.logger.Warn("failed to write websocket message", "error", err)
	}
	return err
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
