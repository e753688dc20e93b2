package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleetroute/internal/events"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

var (
	heartbeatInterval = 15 * time.Second
	pingInterval      = 20 * time.Second
	pongWait          = 60 * time.Second
	writeWait         = 5 * time.Second
)

// EventStreamHandler handles GET /v1/plannings/{id}/events/stream as
// server-sent events.
func (s *Server) EventStreamHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Planner.Get(r.Context(), id); err != nil {
		s.writeError(w, r, "Planning not found", err)
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() error {
		writeSSE(w, "heartbeat", map[string]string{"planningId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
		return rc.Flush()
	}
	if err := heartbeat(); err != nil {
		s.Log.Debug("sse flush failed", zap.Error(err))
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt)
			if rc.Flush() != nil {
				return
			}
		case <-ticker.C:
			if heartbeat() != nil {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, event string, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

// EventWSHandler handles GET /v1/plannings/{id}/events/ws. Each planning
// event is sent as one JSON text message; client messages are ignored.
func (s *Server) EventWSHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Planner.Get(r.Context(), id); err != nil {
		s.writeError(w, r, "Planning not found", err)
		return
	}
	// subscribe before the handshake completes so the client sees every
	// event published after its dial returns
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeWS(conn, evt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, evt events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(evt)
}
