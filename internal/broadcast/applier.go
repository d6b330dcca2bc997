package broadcast

import (
    "sync"

    "github.com/lokkit/kiosk-server/internal/model"
)

// Applier implements the subscriber-side idempotence contract: an event is
// applied only when its version is greater than the last version applied
// for the same (kiosk_id, locker_id) pair.  Replays, duplicates and
// reordered deliveries all fall out as no-ops, so any transport that is
// merely at-least-once becomes safe to consume.
type Applier struct {
    mu   sync.Mutex
    last map[applierKey]uint64
}

type applierKey struct {
    kioskID  string
    lockerID uint64
}

// NewApplier returns an Applier with no applied history.
func NewApplier() *Applier {
    return &Applier{last: make(map[applierKey]uint64)}
}

// Apply records the event's version and reports whether the caller should
// act on it.  False means the event is stale or a duplicate.
func (a *Applier) Apply(ev model.StateUpdateEvent) bool {
    a.mu.Lock()
    defer a.mu.Unlock()
    key := applierKey{ev.KioskID, ev.LockerID}
    if ev.Version <= a.last[key] {
        return false
    }
    a.last[key] = ev.Version
    return true
}
