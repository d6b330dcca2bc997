// Package broadcast fans committed locker state changes out to every
// subscribed observer: WebSocket panels, other kiosks and the audit
// consumer.  Delivery is at-least-once; subscribers rely on the version
// carried by each event (see Applier) rather than on ordering.
package broadcast

import (
    "log"
    "sync"
    "sync/atomic"

    "github.com/lokkit/kiosk-server/internal/model"
)

// Subscriber receives events on C until Unsubscribe is called.  A
// subscriber that stops draining C loses events rather than blocking
// publishers; every loss is counted, and the WebSocket layer treats a
// nonzero count as reason to close the connection so the client
// reconnects and re-syncs from the snapshot API.
type Subscriber struct {
    kioskID string // empty subscribes to all kiosks
    C       chan model.StateUpdateEvent
    dropped atomic.Uint64
}

// Dropped reports how many events were lost because C was full.
func (s *Subscriber) Dropped() uint64 {
    return s.dropped.Load()
}

// Hub is the in-process subscriber registry.
type Hub struct {
    mu   sync.RWMutex
    subs map[*Subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
    return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers an observer.  kioskID filters events to one kiosk;
// pass the empty string to observe the whole fleet.  buf is the channel
// capacity; events published while the buffer is full are dropped for
// that subscriber only.
func (h *Hub) Subscribe(kioskID string, buf int) *Subscriber {
    if buf <= 0 {
        buf = 32
    }
    s := &Subscriber{kioskID: kioskID, C: make(chan model.StateUpdateEvent, buf)}
    h.mu.Lock()
    h.subs[s] = struct{}{}
    h.mu.Unlock()
    return s
}

// Unsubscribe removes the observer.  Its channel is not closed, so a
// racing Publish can never send on a closed channel; readers should stop
// selecting on C after unsubscribing.
func (h *Hub) Unsubscribe(s *Subscriber) {
    h.mu.Lock()
    delete(h.subs, s)
    h.mu.Unlock()
}

// Publish delivers the event to every matching subscriber without
// blocking.  It satisfies the engine's Publisher interface.
func (h *Hub) Publish(ev model.StateUpdateEvent) {
    h.mu.RLock()
    defer h.mu.RUnlock()
    for s := range h.subs {
        if s.kioskID != "" && s.kioskID != ev.KioskID {
            continue
        }
        select {
        case s.C <- ev:
        default:
            s.dropped.Add(1)
            log.Printf("broadcast: dropping event kiosk=%s locker=%d for slow subscriber", ev.KioskID, ev.LockerID)
        }
    }
}
