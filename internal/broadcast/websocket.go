package broadcast

import (
    "log"
    "net/http"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"

    "github.com/lokkit/kiosk-server/internal/model"
)

// Envelope is the WebSocket message frame.  Type is one of
// "state_update", "connection_status" or "heartbeat"; Data carries the
// type-specific payload.
type Envelope struct {
    Type string      `json:"type"`
    Data interface{} `json:"data"`
}

// WSHandler upgrades HTTP requests to WebSocket subscriptions on the hub.
// Heartbeat envelopes are sent on an independent cadence so clients can
// detect silent disconnects even when no locker changes state.
type WSHandler struct {
    hub       *Hub
    heartbeat time.Duration
    upgrader  websocket.Upgrader
}

// NewWSHandler constructs a WSHandler.  The kiosk UIs and the admin panel
// are served from their own origins, so cross-origin upgrades are allowed.
func NewWSHandler(hub *Hub, heartbeat time.Duration) *WSHandler {
    if heartbeat <= 0 {
        heartbeat = 15 * time.Second
    }
    return &WSHandler{
        hub:       hub,
        heartbeat: heartbeat,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
            CheckOrigin:     func(*http.Request) bool { return true },
        },
    }
}

// Serve handles GET /ws.  An optional kioskId query parameter narrows the
// stream to one kiosk; without it the client observes the whole fleet.
func (h *WSHandler) Serve(c echo.Context) error {
    kioskID := c.QueryParam("kioskId")
    conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
    if err != nil {
        // Upgrade already wrote the HTTP error response.
        return nil
    }
    defer conn.Close()

    sub := h.hub.Subscribe(kioskID, 64)
    defer h.hub.Unsubscribe(sub)

    if err := h.write(conn, Envelope{
        Type: "connection_status",
        Data: map[string]interface{}{"connected": true, "kiosk_id": kioskID},
    }); err != nil {
        return nil
    }

    // Reader goroutine: we never expect client frames, but reading is what
    // surfaces the close handshake and dead TCP peers.
    closed := make(chan struct{})
    go func() {
        defer close(closed)
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    ticker := time.NewTicker(h.heartbeat)
    defer ticker.Stop()

    for {
        select {
        case ev := <-sub.C:
            if err := h.write(conn, Envelope{Type: "state_update", Data: ev}); err != nil {
                log.Printf("broadcast: ws write failed, dropping client: %v", err)
                return nil
            }
            if n := sub.Dropped(); n > 0 {
                // The client missed events and its view may be stale.
                // Close so it reconnects and re-syncs from the snapshot
                // endpoints.
                log.Printf("broadcast: closing ws client kiosk=%q after %d dropped events", kioskID, n)
                return nil
            }
        case <-ticker.C:
            if err := h.write(conn, Envelope{
                Type: "heartbeat",
                Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
            }); err != nil {
                return nil
            }
        case <-closed:
            return nil
        }
    }
}

func (h *WSHandler) write(conn *websocket.Conn, env Envelope) error {
    _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
    return conn.WriteJSON(env)
}

// Fanout composes publishers so the engine publishes once and every
// transport (hub, AMQP, cache invalidation) sees the event.
type Fanout []interface {
    Publish(ev model.StateUpdateEvent)
}

// Publish forwards the event to every member in order.
func (f Fanout) Publish(ev model.StateUpdateEvent) {
    for _, p := range f {
        p.Publish(ev)
    }
}
