package repository

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lokkit/kiosk-server/internal/model"
)

func TestSeedPromotesZeroVersion(t *testing.T) {
    s := NewMemoryLockerStore()
    s.Seed(model.Locker{KioskID: "k1", LockerID: 1, Status: model.StatusFree})

    l, err := s.Get(context.Background(), "k1", 1)
    require.NoError(t, err)
    assert.Equal(t, uint64(1), l.Version)
    assert.False(t, l.UpdatedAt.IsZero())
}

func TestGetUnknownLocker(t *testing.T) {
    s := NewMemoryLockerStore()
    _, err := s.Get(context.Background(), "k1", 99)
    assert.ErrorIs(t, err, ErrLockerNotFound)
}

func TestCompareAndSetBumpsVersion(t *testing.T) {
    s := NewMemoryLockerStore()
    s.SeedFree("k1", 1)

    updated, err := s.CompareAndSet(context.Background(), "k1", 1, 1, func(l *model.Locker) error {
        l.Status = model.StatusReserved
        return nil
    })
    require.NoError(t, err)
    assert.Equal(t, model.StatusReserved, updated.Status)
    assert.Equal(t, uint64(2), updated.Version)
}

func TestCompareAndSetRejectsStaleVersion(t *testing.T) {
    s := NewMemoryLockerStore()
    s.SeedFree("k1", 1)

    _, err := s.CompareAndSet(context.Background(), "k1", 1, 1, func(l *model.Locker) error {
        l.Status = model.StatusReserved
        return nil
    })
    require.NoError(t, err)

    // Same token a second time: the record has moved on.
    _, err = s.CompareAndSet(context.Background(), "k1", 1, 1, func(l *model.Locker) error {
        l.Status = model.StatusOwned
        return nil
    })
    assert.ErrorIs(t, err, ErrVersionConflict)

    l, err := s.Get(context.Background(), "k1", 1)
    require.NoError(t, err)
    assert.Equal(t, model.StatusReserved, l.Status)
}

func TestCompareAndSetMutatorErrorLeavesRecordUntouched(t *testing.T) {
    s := NewMemoryLockerStore()
    s.SeedFree("k1", 1)

    wantErr := assert.AnError
    _, err := s.CompareAndSet(context.Background(), "k1", 1, 1, func(l *model.Locker) error {
        l.Status = model.StatusBlocked
        return wantErr
    })
    assert.ErrorIs(t, err, wantErr)

    l, err := s.Get(context.Background(), "k1", 1)
    require.NoError(t, err)
    assert.Equal(t, model.StatusFree, l.Status)
    assert.Equal(t, uint64(1), l.Version)
}

func TestCompareAndSetProtectsIdentityAndVersion(t *testing.T) {
    s := NewMemoryLockerStore()
    s.SeedFree("k1", 1)

    updated, err := s.CompareAndSet(context.Background(), "k1", 1, 1, func(l *model.Locker) error {
        l.KioskID = "other"
        l.LockerID = 42
        l.Version = 99
        l.Status = model.StatusBlocked
        return nil
    })
    require.NoError(t, err)
    assert.Equal(t, "k1", updated.KioskID)
    assert.Equal(t, uint64(1), updated.LockerID)
    assert.Equal(t, uint64(2), updated.Version)
}

func TestCompareAndSetUnknownLocker(t *testing.T) {
    s := NewMemoryLockerStore()
    _, err := s.CompareAndSet(context.Background(), "k1", 7, 1, func(*model.Locker) error { return nil })
    assert.ErrorIs(t, err, ErrLockerNotFound)
}

func TestListOrdersByLockerID(t *testing.T) {
    s := NewMemoryLockerStore()
    s.Seed(model.Locker{KioskID: "k1", LockerID: 3, Status: model.StatusFree})
    s.Seed(model.Locker{KioskID: "k1", LockerID: 1, Status: model.StatusOwned})
    s.Seed(model.Locker{KioskID: "k1", LockerID: 2, Status: model.StatusFree})
    s.Seed(model.Locker{KioskID: "other", LockerID: 9, Status: model.StatusFree})

    all, err := s.List(context.Background(), "k1")
    require.NoError(t, err)
    require.Len(t, all, 3)
    assert.Equal(t, uint64(1), all[0].LockerID)
    assert.Equal(t, uint64(2), all[1].LockerID)
    assert.Equal(t, uint64(3), all[2].LockerID)
}

func TestListByStatus(t *testing.T) {
    s := NewMemoryLockerStore()
    s.Seed(model.Locker{KioskID: "k1", LockerID: 1, Status: model.StatusFree})
    s.Seed(model.Locker{KioskID: "k1", LockerID: 2, Status: model.StatusBlocked})

    free, err := s.ListByStatus(context.Background(), "k1", model.StatusFree)
    require.NoError(t, err)
    require.Len(t, free, 1)
    assert.Equal(t, uint64(1), free[0].LockerID)
}

func TestFindByOwner(t *testing.T) {
    s := NewMemoryLockerStore()
    owned := time.Now().UTC()
    s.Seed(model.Locker{KioskID: "k1", LockerID: 2, Status: model.StatusOwned,
        OwnerType: model.OwnerRFID, OwnerKey: "card-7", OwnedAt: &owned})
    s.Seed(model.Locker{KioskID: "k1", LockerID: 3, Status: model.StatusOwned,
        OwnerType: model.OwnerDevice, OwnerKey: "card-7"})

    got, err := s.FindByOwner(context.Background(), "k1", model.OwnerRFID, "card-7")
    require.NoError(t, err)
    require.Len(t, got, 1)
    assert.Equal(t, uint64(2), got[0].LockerID)

    none, err := s.FindByOwner(context.Background(), "k1", model.OwnerRFID, "card-8")
    require.NoError(t, err)
    assert.Empty(t, none)
}
