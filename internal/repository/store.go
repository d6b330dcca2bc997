package repository

import (
    "context"

    "github.com/lokkit/kiosk-server/internal/model"
)

// Mutator applies an in-place change to a locker inside a compare-and-set
// write.  The store calls it with the current committed record after the
// version check has passed.  Returning an error aborts the write without
// bumping the version; this is how callers reject illegal status
// transitions atomically with the version check.
type Mutator func(l *model.Locker) error

// LockerStore is the single source of truth for locker occupancy.  All
// mutations go through CompareAndSet; no component caches writable locker
// state across calls.  Implementations must bump Version and stamp
// UpdatedAt on every successful write.
type LockerStore interface {
    // Get returns the locker for the given identity or ErrLockerNotFound.
    Get(ctx context.Context, kioskID string, lockerID uint64) (model.Locker, error)

    // List returns every locker of a kiosk ordered by locker id.
    List(ctx context.Context, kioskID string) ([]model.Locker, error)

    // ListByStatus returns the kiosk's lockers currently in the given
    // status, ordered by locker id.
    ListByStatus(ctx context.Context, kioskID string, status model.LockerStatus) ([]model.Locker, error)

    // FindByOwner returns the kiosk's lockers held by the given owner.
    // Ownership is resolved per kiosk only; lockers the same owner holds
    // at other kiosks are not surfaced.
    FindByOwner(ctx context.Context, kioskID string, ownerType model.OwnerType, ownerKey string) ([]model.Locker, error)

    // CompareAndSet applies mutate to the locker if and only if its stored
    // version equals expectedVersion.  It returns the committed record with
    // the bumped version, ErrVersionConflict when another actor wrote
    // first, ErrLockerNotFound when the identity is unknown, or the
    // mutator's error unchanged when the mutator rejects the change.
    CompareAndSet(ctx context.Context, kioskID string, lockerID uint64, expectedVersion uint64, mutate Mutator) (model.Locker, error)
}
