package broadcast

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lokkit/kiosk-server/internal/model"
)

func event(kioskID string, lockerID, version uint64) model.StateUpdateEvent {
    return model.StateUpdateEvent{
        KioskID:  kioskID,
        LockerID: lockerID,
        Status:   model.StatusFree,
        Version:  version,
    }
}

func TestHubDeliversToSubscriber(t *testing.T) {
    h := NewHub()
    s := h.Subscribe("", 4)
    defer h.Unsubscribe(s)

    h.Publish(event("k1", 1, 2))

    got := <-s.C
    assert.Equal(t, "k1", got.KioskID)
    assert.Equal(t, uint64(2), got.Version)
}

func TestHubKioskFilter(t *testing.T) {
    h := NewHub()
    only := h.Subscribe("k1", 4)
    all := h.Subscribe("", 4)
    defer h.Unsubscribe(only)
    defer h.Unsubscribe(all)

    h.Publish(event("k2", 1, 1))
    h.Publish(event("k1", 1, 1))

    got := <-only.C
    assert.Equal(t, "k1", got.KioskID)
    assert.Empty(t, only.C)
    assert.Len(t, all.C, 2)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
    h := NewHub()
    s := h.Subscribe("", 2)
    defer h.Unsubscribe(s)

    for v := uint64(1); v <= 5; v++ {
        h.Publish(event("k1", 1, v))
    }

    // Buffer of two: the rest were dropped rather than blocking Publish,
    // and each loss shows on the counter so the transport layer can force
    // a re-sync.
    require.Len(t, s.C, 2)
    first := <-s.C
    assert.Equal(t, uint64(1), first.Version)
    assert.Equal(t, uint64(3), s.Dropped())
}

func TestHubDropCounterStaysZeroWhenDrained(t *testing.T) {
    h := NewHub()
    s := h.Subscribe("", 4)
    defer h.Unsubscribe(s)

    h.Publish(event("k1", 1, 1))
    h.Publish(event("k1", 1, 2))

    assert.Equal(t, uint64(0), s.Dropped())
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
    h := NewHub()
    s := h.Subscribe("", 4)
    h.Unsubscribe(s)

    h.Publish(event("k1", 1, 1))
    assert.Empty(t, s.C)
}

func TestApplierGatesOnVersion(t *testing.T) {
    a := NewApplier()

    assert.True(t, a.Apply(event("k1", 1, 1)))
    assert.True(t, a.Apply(event("k1", 1, 2)))

    // Duplicate and stale deliveries are no-ops.
    assert.False(t, a.Apply(event("k1", 1, 2)))
    assert.False(t, a.Apply(event("k1", 1, 1)))

    // Gaps are fine; only monotonicity matters.
    assert.True(t, a.Apply(event("k1", 1, 9)))
}

func TestApplierTracksLockersIndependently(t *testing.T) {
    a := NewApplier()

    assert.True(t, a.Apply(event("k1", 1, 5)))
    assert.True(t, a.Apply(event("k1", 2, 1)))
    assert.True(t, a.Apply(event("k2", 1, 1)))
    assert.False(t, a.Apply(event("k1", 1, 5)))
}

type captivePublisher struct {
    events []model.StateUpdateEvent
}

func (p *captivePublisher) Publish(ev model.StateUpdateEvent) {
    p.events = append(p.events, ev)
}

func TestFanoutForwardsToAll(t *testing.T) {
    a := &captivePublisher{}
    b := &captivePublisher{}

    Fanout{a, b}.Publish(event("k1", 1, 1))

    assert.Len(t, a.events, 1)
    assert.Len(t, b.events, 1)
}
