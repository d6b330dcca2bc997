package model

import "time"

// Session represents the bounded-lifetime interaction between a scanned
// RFID card and a set of candidate lockers at one kiosk.  At most one
// session is live per kiosk at any instant; creating a new one atomically
// invalidates the previous one.
//
// Candidates is a snapshot of the lockers that were FREE when the session
// was created.  It is never re-queried mid-session, so a candidate may have
// been taken by another actor by the time the user picks it; selection then
// fails with a version conflict instead of silently substituting a locker.
type Session struct {
    ID         string    // opaque session identifier returned to the kiosk UI
    KioskID    string    // kiosk the session belongs to
    CardID     string    // RFID card that opened the session
    CreatedAt  time.Time // when the card was scanned
    ExpiresAt  time.Time // CreatedAt plus the configured session window
    Candidates []uint64  // locker ids offered to the user at creation
}

// Expired reports whether the session deadline has passed at the given time.
func (s Session) Expired(now time.Time) bool {
    return !now.Before(s.ExpiresAt)
}

// Offers reports whether the given locker id was part of the candidate
// snapshot taken at session creation.
func (s Session) Offers(lockerID uint64) bool {
    for _, id := range s.Candidates {
        if id == lockerID {
            return true
        }
    }
    return false
}
