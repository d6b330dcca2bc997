package queue

import "github.com/lokkit/kiosk-server/internal/model"

// LockerEventsQueue is the durable queue carrying every committed locker
// state change across kiosk processes and to the audit consumer.
const LockerEventsQueue = "locker.events"

// LockerEvent wraps a StateUpdateEvent with the identity of the process
// that committed it.  Consumers use Origin to avoid re-injecting their own
// events into their local broadcast hub; version gating makes replays safe
// either way, Origin just cuts the noise.
type LockerEvent struct {
    Origin string                 `json:"origin"`
    Event  model.StateUpdateEvent `json:"event"`
}
