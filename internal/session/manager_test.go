package session

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lokkit/kiosk-server/internal/engine"
    "github.com/lokkit/kiosk-server/internal/hardware"
    "github.com/lokkit/kiosk-server/internal/model"
    "github.com/lokkit/kiosk-server/internal/repository"
)

type fakeActuator struct {
    mu    sync.Mutex
    err   error
    calls int
}

func (a *fakeActuator) Execute(ctx context.Context, cmd *model.HardwareCommand) error {
    a.mu.Lock()
    defer a.mu.Unlock()
    a.calls++
    return a.err
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.StateUpdateEvent) {}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *repository.MemoryLockerStore, *fakeActuator) {
    t.Helper()
    store := repository.NewMemoryLockerStore()
    act := &fakeActuator{}
    sm := engine.New(store, act, nopPublisher{})
    return NewManager(store, sm, ttl), store, act
}

func TestHandleCardOpensSession(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 3)
    store.Seed(model.Locker{KioskID: "k1", LockerID: 4, Status: model.StatusFree, IsVIP: true})

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)
    require.NotNil(t, res.Session)
    assert.Nil(t, res.Released)

    sess := res.Session
    assert.NotEmpty(t, sess.ID)
    assert.Equal(t, "k1", sess.KioskID)
    assert.Equal(t, "card-1", sess.CardID)
    // VIP lockers are not offered to walk-up cards.
    assert.Equal(t, []uint64{1, 2, 3}, sess.Candidates)
    assert.Equal(t, sess.CreatedAt.Add(time.Minute), sess.ExpiresAt)
}

func TestHandleCardNoFreeLockers(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.Seed(model.Locker{KioskID: "k1", LockerID: 1, Status: model.StatusOwned,
        OwnerType: model.OwnerRFID, OwnerKey: "other"})

    _, err := m.HandleCard(context.Background(), "k1", "card-1")
    assert.ErrorIs(t, err, ErrNoFreeLockers)
}

func TestHandleCardReturnFlow(t *testing.T) {
    m, store, act := newTestManager(t, time.Minute)
    store.Seed(model.Locker{KioskID: "k1", LockerID: 2, Status: model.StatusOwned,
        OwnerType: model.OwnerRFID, OwnerKey: "card-1"})

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)
    require.NotNil(t, res.Released)
    assert.Nil(t, res.Session)
    assert.Equal(t, model.StatusFree, res.Released.Status)
    assert.False(t, res.Released.HasOwner())
    // The door is pulsed so the user can retrieve their belongings.
    assert.Equal(t, 1, act.calls)

    // No session was opened for the return.
    _, live := m.Status("k1")
    assert.False(t, live)
}

func TestHandleCardSkipsBlockedLockerOnReturn(t *testing.T) {
    m, store, act := newTestManager(t, time.Minute)
    store.Seed(model.Locker{KioskID: "k1", LockerID: 1, Status: model.StatusBlocked,
        OwnerType: model.OwnerRFID, OwnerKey: "card-1"})
    store.Seed(model.Locker{KioskID: "k1", LockerID: 2, Status: model.StatusFree})

    // The card's locker is held by staff; instead of failing the return
    // transition, the scan opens a fresh session on the free lockers.
    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)
    require.NotNil(t, res.Session)
    assert.Nil(t, res.Released)
    assert.Equal(t, []uint64{2}, res.Session.Candidates)
    assert.Equal(t, 0, act.calls)

    // The blocked locker keeps its owner for staff to resolve.
    l, err := store.Get(context.Background(), "k1", 1)
    require.NoError(t, err)
    assert.Equal(t, model.StatusBlocked, l.Status)
    assert.Equal(t, "card-1", l.OwnerKey)
}

func TestHandleCardSkipsErrorLockerOnReturn(t *testing.T) {
    m, store, act := newTestManager(t, time.Minute)
    store.Seed(model.Locker{KioskID: "k1", LockerID: 1, Status: model.StatusError,
        OwnerType: model.OwnerRFID, OwnerKey: "card-1"})
    store.Seed(model.Locker{KioskID: "k1", LockerID: 2, Status: model.StatusOwned,
        OwnerType: model.OwnerRFID, OwnerKey: "card-1"})

    // A second locker in OWNED still runs the return flow; the one stuck
    // in ERROR is left for staff reset.
    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)
    require.NotNil(t, res.Released)
    assert.Equal(t, uint64(2), res.Released.LockerID)
    assert.Equal(t, 1, act.calls)
}

func TestNewScanReplacesSession(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 2)

    first, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)
    second, err := m.HandleCard(context.Background(), "k1", "card-2")
    require.NoError(t, err)

    // The first session is gone; selecting against it fails.
    _, err = m.Select(context.Background(), "k1", first.Session.ID, 1)
    assert.ErrorIs(t, err, ErrSessionInvalid)

    live, ok := m.Status("k1")
    require.True(t, ok)
    assert.Equal(t, second.Session.ID, live.ID)
}

func TestSessionsOnDifferentKiosksCoexist(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 1)
    store.SeedFree("k2", 1)

    _, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)
    _, err = m.HandleCard(context.Background(), "k2", "card-2")
    require.NoError(t, err)

    _, ok := m.Status("k1")
    assert.True(t, ok)
    _, ok = m.Status("k2")
    assert.True(t, ok)
}

func TestSelectAssignsLockerAndEndsSession(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 2)

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    l, err := m.Select(context.Background(), "k1", res.Session.ID, 2)
    require.NoError(t, err)
    assert.Equal(t, model.StatusOwned, l.Status)
    assert.Equal(t, model.OwnerRFID, l.OwnerType)
    assert.Equal(t, "card-1", l.OwnerKey)

    // Success terminates the session.
    _, err = m.Select(context.Background(), "k1", res.Session.ID, 1)
    assert.ErrorIs(t, err, ErrSessionInvalid)
    _, live := m.Status("k1")
    assert.False(t, live)
}

func TestSelectRejectsNonCandidate(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 2)
    store.Seed(model.Locker{KioskID: "k1", LockerID: 3, Status: model.StatusFree, IsVIP: true})

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    _, err = m.Select(context.Background(), "k1", res.Session.ID, 3)
    assert.ErrorIs(t, err, ErrNotCandidate)

    // The session survives a bad pick.
    _, live := m.Status("k1")
    assert.True(t, live)
}

func TestSelectUnknownSession(t *testing.T) {
    m, _, _ := newTestManager(t, time.Minute)
    _, err := m.Select(context.Background(), "k1", "nope", 1)
    assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSelectRejectsKioskMismatch(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 1)

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    _, err = m.Select(context.Background(), "k2", res.Session.ID, 1)
    assert.ErrorIs(t, err, ErrSessionInvalid)

    // A wiring bug on one kiosk must not burn the session on another.
    _, live := m.Status("k1")
    assert.True(t, live)

    // The session is still usable from its own kiosk.
    l, err := m.Select(context.Background(), "k1", res.Session.ID, 1)
    require.NoError(t, err)
    assert.Equal(t, model.StatusOwned, l.Status)
}

func TestSelectAfterDeadline(t *testing.T) {
    m, store, _ := newTestManager(t, time.Hour)
    store.SeedFree("k1", 1)

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    // Move the manager clock past the deadline instead of sleeping.
    m.now = func() time.Time { return res.Session.ExpiresAt.Add(time.Second) }

    _, err = m.Select(context.Background(), "k1", res.Session.ID, 1)
    assert.ErrorIs(t, err, ErrSessionExpired)

    _, live := m.Status("k1")
    assert.False(t, live)
}

func TestSelectConflictWhenCandidateTaken(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 1)

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    // Another actor takes the candidate after the snapshot was offered.
    _, err = store.CompareAndSet(context.Background(), "k1", 1, 1, func(l *model.Locker) error {
        l.Status = model.StatusOwned
        l.OwnerType = model.OwnerDevice
        l.OwnerKey = "dev-1"
        return nil
    })
    require.NoError(t, err)

    _, err = m.Select(context.Background(), "k1", res.Session.ID, 1)
    assert.Error(t, err)

    // Any selection outcome ends the session; the user must scan again.
    _, live := m.Status("k1")
    assert.False(t, live)

    l, err := store.Get(context.Background(), "k1", 1)
    require.NoError(t, err)
    assert.Equal(t, "dev-1", l.OwnerKey)
}

func TestSelectHardwareFailure(t *testing.T) {
    m, store, act := newTestManager(t, time.Minute)
    store.SeedFree("k1", 1)
    act.err = hardware.ErrTimeout

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    failed, err := m.Select(context.Background(), "k1", res.Session.ID, 1)
    require.ErrorIs(t, err, hardware.ErrTimeout)
    assert.Equal(t, model.StatusError, failed.Status)

    _, live := m.Status("k1")
    assert.False(t, live)
}

func TestCancelTerminatesSession(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 1)

    res, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    require.NoError(t, m.Cancel("k1", "user_walked_away"))
    _, live := m.Status("k1")
    assert.False(t, live)

    _, err = m.Select(context.Background(), "k1", res.Session.ID, 1)
    assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestCancelWithoutSession(t *testing.T) {
    m, _, _ := newTestManager(t, time.Minute)
    assert.ErrorIs(t, m.Cancel("k1", "noop"), ErrSessionInvalid)
}

func TestExpiryTimerTerminatesSession(t *testing.T) {
    m, store, _ := newTestManager(t, 20*time.Millisecond)
    store.SeedFree("k1", 1)

    _, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    require.Eventually(t, func() bool {
        _, live := m.Status("k1")
        return !live
    }, time.Second, 5*time.Millisecond)

    // The locker was never claimed and stays available.
    l, err := store.Get(context.Background(), "k1", 1)
    require.NoError(t, err)
    assert.Equal(t, model.StatusFree, l.Status)
}

func TestStatusReturnsCopy(t *testing.T) {
    m, store, _ := newTestManager(t, time.Minute)
    store.SeedFree("k1", 2)

    _, err := m.HandleCard(context.Background(), "k1", "card-1")
    require.NoError(t, err)

    got, ok := m.Status("k1")
    require.True(t, ok)
    got.Candidates[0] = 999

    again, ok := m.Status("k1")
    require.True(t, ok)
    assert.Equal(t, uint64(1), again.Candidates[0])
}
