package api

import (
    "net/http"
    "time"

    "github.com/gorilla/websocket"

    "mealroutes/internal/routing"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsEvent struct {
    Type string         `json:"type"`
    Day  string         `json:"day"`
    Data map[string]any `json:"data,omitempty"`
}

// RoutesStreamHandler handles GET /v1/routes/stream?day=. Each connection
// subscribes to one day's event feed and receives every route change as a
// JSON frame until the client disconnects.
func (s *Server) RoutesStreamHandler(w http.ResponseWriter, r *http.Request) {
    day, ok := routing.NormalizeDay(r.URL.Query().Get("day"))
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Invalid day", "day query parameter is required", r.URL.Path)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    ch := s.Broker.Subscribe(day)
    defer s.Broker.Unsubscribe(day, ch)

    conn.SetReadLimit(1 << 16)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error {
        _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
        return nil
    })

    // Reader drains control frames; its exit signals disconnect.
    done := make(chan struct{})
    go func() {
        defer close(done)
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    ticker := time.NewTicker(20 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-done:
            return
        case <-ticker.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
                return
            }
        case evt, ok := <-ch:
            if !ok {
                return
            }
            if err := conn.WriteJSON(wsEvent{Type: evt.Type, Day: day, Data: evt.Data}); err != nil {
                return
            }
        }
    }
}
