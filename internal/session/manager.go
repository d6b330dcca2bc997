// Package session owns the lifecycle of RFID scan sessions.  A session
// binds one scanned card to a snapshot of candidate lockers at one kiosk
// for a bounded window; at most one session is live per kiosk and creating
// a new one atomically invalidates the previous one.
package session

import (
    "context"
    "errors"
    "log"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/lokkit/kiosk-server/internal/engine"
    "github.com/lokkit/kiosk-server/internal/model"
    "github.com/lokkit/kiosk-server/internal/repository"
)

// ErrSessionInvalid is returned when the session id is unknown or already
// terminated.  Recoverable by scanning again.
var ErrSessionInvalid = errors.New("session invalid")

// ErrSessionExpired is returned when the session deadline has passed.
// Recoverable by scanning again.
var ErrSessionExpired = errors.New("session expired")

// ErrNotCandidate is returned when a selection names a locker that was not
// part of the session's candidate snapshot.  This is a kiosk UI bug and is
// never retried automatically.
var ErrNotCandidate = errors.New("locker not in session candidates")

// ErrNoFreeLockers is returned when a scan finds no locker to offer.
var ErrNoFreeLockers = errors.New("no free lockers")

// ScanResult is the outcome of a card scan.  Exactly one field is set:
// Released when the card already owned a locker here and the return flow
// ran, Session when a new assignment session was opened.
type ScanResult struct {
    Released *model.Locker
    Session  *model.Session
}

// Manager tracks the live session per kiosk and its expiry timer.
type Manager struct {
    mu      sync.Mutex
    store   repository.LockerStore
    sm      *engine.StateMachine
    ttl     time.Duration
    byKiosk map[string]*active
    byID    map[string]*active
    now     func() time.Time
}

// active is a live session plus its bookkeeping.  The timer is single-shot
// and replaced whenever the kiosk's session changes, so expiry fires at
// most once per session.
type active struct {
    model.Session
    timer    *time.Timer
    inflight bool         // a selection is between claim and terminal outcome
    reserved *reservation // locker the session has moved to RESERVED, if any
}

type reservation struct {
    lockerID uint64
    version  uint64
}

// NewManager constructs a Manager.  ttl is the session window measured
// from the card scan.
func NewManager(store repository.LockerStore, sm *engine.StateMachine, ttl time.Duration) *Manager {
    if store == nil || sm == nil {
        panic("nil dependency passed to session.NewManager")
    }
    return &Manager{
        store:   store,
        sm:      sm,
        ttl:     ttl,
        byKiosk: make(map[string]*active),
        byID:    make(map[string]*active),
        now:     func() time.Time { return time.Now().UTC() },
    }
}

// HandleCard is the single entry point for a scanned card.  When the card
// already owns a locker at this kiosk the scan is a return: the locker is
// released directly with no session.  Otherwise a new session is opened
// with the currently free lockers as candidates, replacing whatever
// session was in flight for the kiosk.
func (m *Manager) HandleCard(ctx context.Context, kioskID, cardID string) (ScanResult, error) {
    owned, err := m.store.FindByOwner(ctx, kioskID, model.OwnerRFID, cardID)
    if err != nil {
        return ScanResult{}, err
    }
    for _, l := range owned {
        // Only an OWNED locker can be returned by a scan.  A locker the
        // card holds in BLOCKED or ERROR stays with staff; the scan falls
        // through and opens a fresh session instead of dead-ending.
        if l.Status != model.StatusOwned {
            continue
        }
        released, err := m.sm.Release(ctx, kioskID, l.LockerID, l.Version)
        if err != nil {
            return ScanResult{}, err
        }
        return ScanResult{Released: &released}, nil
    }

    free, err := m.store.ListByStatus(ctx, kioskID, model.StatusFree)
    if err != nil {
        return ScanResult{}, err
    }
    candidates := make([]uint64, 0, len(free))
    for _, l := range free {
        if l.IsVIP {
            // VIP lockers are never offered to walk-up cards.
            continue
        }
        candidates = append(candidates, l.LockerID)
    }
    if len(candidates) == 0 {
        return ScanResult{}, ErrNoFreeLockers
    }

    now := m.now()
    sess := model.Session{
        ID:         uuid.NewString(),
        KioskID:    kioskID,
        CardID:     cardID,
        CreatedAt:  now,
        ExpiresAt:  now.Add(m.ttl),
        Candidates: candidates,
    }

    m.mu.Lock()
    stale := m.removeKioskLocked(kioskID)
    a := &active{Session: sess}
    a.timer = time.AfterFunc(m.ttl, func() { m.expire(sess.ID) })
    m.byKiosk[kioskID] = a
    m.byID[sess.ID] = a
    m.mu.Unlock()

    if stale != nil {
        log.Printf("session: kiosk=%s session %s replaced by new scan", kioskID, stale.ID)
        m.releaseReservation(stale)
    }
    out := sess
    return ScanResult{Session: &out}, nil
}

// Select validates a locker pick against its session and runs the
// reserve-plus-confirm composite transition.  A non-empty kioskID must
// match the kiosk the session was opened at.  Any outcome, success or
// failure, terminates the session.
func (m *Manager) Select(ctx context.Context, kioskID, sessionID string, lockerID uint64) (model.Locker, error) {
    m.mu.Lock()
    a, ok := m.byID[sessionID]
    if !ok {
        m.mu.Unlock()
        return model.Locker{}, ErrSessionInvalid
    }
    if kioskID != "" && a.KioskID != kioskID {
        // Session ids are unguessable, so a mismatch is a UI wiring bug;
        // the session itself stays live.
        m.mu.Unlock()
        return model.Locker{}, ErrSessionInvalid
    }
    if a.Expired(m.now()) {
        m.removeLocked(a)
        m.mu.Unlock()
        return model.Locker{}, ErrSessionExpired
    }
    if !a.Offers(lockerID) {
        m.mu.Unlock()
        return model.Locker{}, ErrNotCandidate
    }
    a.inflight = true
    kioskID, cardID := a.KioskID, a.CardID
    m.mu.Unlock()

    current, err := m.store.Get(ctx, kioskID, lockerID)
    if err != nil {
        m.end(sessionID)
        return model.Locker{}, err
    }
    reserved, err := m.sm.Reserve(ctx, kioskID, lockerID, current.Version)
    if err != nil {
        // Typically a version conflict: the candidate snapshot went stale
        // and another actor took the locker first.
        m.end(sessionID)
        return model.Locker{}, err
    }

    m.mu.Lock()
    a.reserved = &reservation{lockerID: lockerID, version: reserved.Version}
    m.mu.Unlock()

    final, hwErr := m.sm.ConfirmSelect(ctx, kioskID, lockerID, reserved.Version, model.OwnerRFID, cardID)
    m.end(sessionID)
    return final, hwErr
}

// Cancel terminates the kiosk's live session, releasing any reservation it
// holds.  A selection already past its claim is never aborted; in that
// case the in-flight call ends the session when the hardware outcome is
// known.
func (m *Manager) Cancel(kioskID, reason string) error {
    m.mu.Lock()
    a, ok := m.byKiosk[kioskID]
    if !ok {
        m.mu.Unlock()
        return ErrSessionInvalid
    }
    if a.inflight {
        m.mu.Unlock()
        log.Printf("session: kiosk=%s cancel (%s) ignored, selection in flight", kioskID, reason)
        return nil
    }
    m.removeLocked(a)
    m.mu.Unlock()

    log.Printf("session: kiosk=%s session %s cancelled (%s)", kioskID, a.ID, reason)
    m.releaseReservation(a)
    return nil
}

// Status returns a copy of the kiosk's live session for UI resume, or
// false when none exists.
func (m *Manager) Status(kioskID string) (model.Session, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    a, ok := m.byKiosk[kioskID]
    if !ok || a.Expired(m.now()) {
        return model.Session{}, false
    }
    out := a.Session
    out.Candidates = append([]uint64(nil), a.Candidates...)
    return out, true
}

// expire is the timer callback.  It runs at most once per session; a
// session already terminated or mid-selection is left for the owning call
// to finish.
func (m *Manager) expire(sessionID string) {
    m.mu.Lock()
    a, ok := m.byID[sessionID]
    if !ok {
        m.mu.Unlock()
        return
    }
    if a.inflight {
        // In-flight actuation always runs to completion; Select ends the
        // session when the outcome is known.
        m.mu.Unlock()
        return
    }
    m.removeLocked(a)
    m.mu.Unlock()

    log.Printf("session: kiosk=%s session %s expired", a.KioskID, a.ID)
    m.releaseReservation(a)
}

// end terminates a session unconditionally, stopping its timer.
func (m *Manager) end(sessionID string) {
    m.mu.Lock()
    if a, ok := m.byID[sessionID]; ok {
        m.removeLocked(a)
    }
    m.mu.Unlock()
}

// removeLocked deletes the session from both indexes and stops its timer.
// Callers must hold m.mu.
func (m *Manager) removeLocked(a *active) {
    if a.timer != nil {
        a.timer.Stop()
    }
    delete(m.byID, a.ID)
    if cur, ok := m.byKiosk[a.KioskID]; ok && cur == a {
        delete(m.byKiosk, a.KioskID)
    }
}

// removeKioskLocked removes the kiosk's current session, if any, and
// returns it so the caller can release its reservation outside the lock.
func (m *Manager) removeKioskLocked(kioskID string) *active {
    a, ok := m.byKiosk[kioskID]
    if !ok {
        return nil
    }
    m.removeLocked(a)
    return a
}

// releaseReservation returns a session's RESERVED locker to FREE.  Losing
// the CAS here means another actor already moved the locker on, which is
// fine; the reservation is released at most once either way.
func (m *Manager) releaseReservation(a *active) {
    if a.reserved == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if _, err := m.sm.ReleaseReservation(ctx, a.KioskID, a.reserved.lockerID, a.reserved.version); err != nil {
        log.Printf("session: kiosk=%s release reservation for locker %d: %v", a.KioskID, a.reserved.lockerID, err)
    }
}
