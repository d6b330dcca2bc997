package repository

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/lokkit/kiosk-server/internal/model"
)

// MemoryLockerStore is a mutex-guarded in-memory LockerStore.  It exists
// for tests and for single-node development without a database; the CAS
// semantics match the MySQL repository exactly, including the version bump
// and UpdatedAt stamp on every successful write.
type MemoryLockerStore struct {
    mu      sync.Mutex
    lockers map[memKey]model.Locker
    now     func() time.Time
}

type memKey struct {
    kioskID  string
    lockerID uint64
}

// NewMemoryLockerStore returns an empty in-memory store.
func NewMemoryLockerStore() *MemoryLockerStore {
    return &MemoryLockerStore{
        lockers: make(map[memKey]model.Locker),
        now:     func() time.Time { return time.Now().UTC() },
    }
}

// Seed inserts or replaces a locker record directly, bypassing CAS.  It is
// intended for test fixtures and initial provisioning only.  A zero Version
// is promoted to 1 so the first CAS has a valid token to compare against.
func (s *MemoryLockerStore) Seed(l model.Locker) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if l.Version == 0 {
        l.Version = 1
    }
    if l.UpdatedAt.IsZero() {
        l.UpdatedAt = s.now()
    }
    s.lockers[memKey{l.KioskID, l.LockerID}] = l
}

// SeedFree inserts count FREE lockers with ids 1..count for the kiosk.
func (s *MemoryLockerStore) SeedFree(kioskID string, count int) {
    for i := 1; i <= count; i++ {
        s.Seed(model.Locker{KioskID: kioskID, LockerID: uint64(i), Status: model.StatusFree})
    }
}

// Get returns the locker for the given identity or ErrLockerNotFound.
func (s *MemoryLockerStore) Get(ctx context.Context, kioskID string, lockerID uint64) (model.Locker, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    l, ok := s.lockers[memKey{kioskID, lockerID}]
    if !ok {
        return model.Locker{}, ErrLockerNotFound
    }
    return l, nil
}

// List returns every locker of the kiosk ordered by locker id.
func (s *MemoryLockerStore) List(ctx context.Context, kioskID string) ([]model.Locker, error) {
    return s.collect(kioskID, func(model.Locker) bool { return true })
}

// ListByStatus returns the kiosk's lockers in the given status.
func (s *MemoryLockerStore) ListByStatus(ctx context.Context, kioskID string, status model.LockerStatus) ([]model.Locker, error) {
    return s.collect(kioskID, func(l model.Locker) bool { return l.Status == status })
}

// FindByOwner returns the kiosk's lockers held by the given owner.
func (s *MemoryLockerStore) FindByOwner(ctx context.Context, kioskID string, ownerType model.OwnerType, ownerKey string) ([]model.Locker, error) {
    return s.collect(kioskID, func(l model.Locker) bool {
        return l.OwnerType == ownerType && l.OwnerKey == ownerKey
    })
}

// CompareAndSet applies mutate under the store mutex when the stored
// version matches expectedVersion.  The mutator receives a copy; identity
// and version fields set by the mutator are discarded.
func (s *MemoryLockerStore) CompareAndSet(ctx context.Context, kioskID string, lockerID uint64, expectedVersion uint64, mutate Mutator) (model.Locker, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    key := memKey{kioskID, lockerID}
    current, ok := s.lockers[key]
    if !ok {
        return model.Locker{}, ErrLockerNotFound
    }
    if current.Version != expectedVersion {
        return model.Locker{}, ErrVersionConflict
    }
    next := current
    if err := mutate(&next); err != nil {
        return model.Locker{}, err
    }
    next.KioskID = current.KioskID
    next.LockerID = current.LockerID
    next.Version = current.Version + 1
    next.UpdatedAt = s.now()
    s.lockers[key] = next
    return next, nil
}

func (s *MemoryLockerStore) collect(kioskID string, keep func(model.Locker) bool) ([]model.Locker, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []model.Locker
    for key, l := range s.lockers {
        if key.kioskID == kioskID && keep(l) {
            out = append(out, l)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].LockerID < out[j].LockerID })
    return out, nil
}
