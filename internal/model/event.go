package model

import "time"

// StateUpdateEvent is the wire-level notification emitted after every
// committed locker mutation.  Delivery is at-least-once and may be out of
// order across reconnects, so the event carries the post-transition Version:
// subscribers must apply an event only when its version is greater than the
// last version they applied for the same (kiosk_id, locker_id) pair, which
// makes application idempotent regardless of transport replays.
type StateUpdateEvent struct {
    KioskID     string       `json:"kiosk_id"`
    LockerID    uint64       `json:"locker_id"`
    Status      LockerStatus `json:"status"`
    OwnerType   OwnerType    `json:"owner_type,omitempty"`
    OwnerKey    string       `json:"owner_key,omitempty"`
    Version     uint64       `json:"version"`
    LastChanged time.Time    `json:"last_changed"`
}

// EventFrom builds a StateUpdateEvent describing the locker's committed
// state.
func EventFrom(l Locker) StateUpdateEvent {
    return StateUpdateEvent{
        KioskID:     l.KioskID,
        LockerID:    l.LockerID,
        Status:      l.Status,
        OwnerType:   l.OwnerType,
        OwnerKey:    l.OwnerKey,
        Version:     l.Version,
        LastChanged: l.UpdatedAt,
    }
}
