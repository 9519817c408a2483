// Package main runs a demo WebSocket client for the route event stream.
package main

import (
    "bytes"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "net/url"
    "os"
    "time"

    "github.com/gorilla/websocket"
)

type wsEvent struct {
    Type string         `json:"type"`
    Day  string         `json:"day"`
    Data map[string]any `json:"data,omitempty"`
}

func main() {
    port := os.Getenv("PORT")
    if port == "" {
        port = "8080"
    }
    base := fmt.Sprintf("http://localhost:%s", port)
    day := "monday"

    // Connect first so the generate events below arrive on the stream.
    u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/routes/stream", RawQuery: "day=" + day}
    c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
    if err != nil {
        log.Fatal(err)
    }
    defer func() { _ = c.Close() }()
    log.Printf("connected to %s", u.String())

    go func() {
        for {
            var evt wsEvent
            if err := c.ReadJSON(&evt); err != nil {
                log.Printf("read: %v", err)
                return
            }
            log.Printf("event %s day=%s data=%v", evt.Type, evt.Day, evt.Data)
        }
    }()

    // Trigger a route generation to produce events.
    body := []byte(`{"day":"monday","driverCount":2}`)
    req, _ := http.NewRequest(http.MethodPost, base+"/v1/routes/generate", bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Role", "admin")
    resp, err := http.DefaultClient.Do(req)
    if err != nil {
        log.Fatal(err)
    }
    var genResp map[string]any
    _ = json.NewDecoder(resp.Body).Decode(&genResp)
    _ = resp.Body.Close()
    log.Printf("generate: %v", genResp)

    time.Sleep(5 * time.Second)
}
