package model

import "time"

// LockerStatus enumerates the occupancy states a locker can be in.
// The values are stored verbatim in the lockers table and carried on
// state update events, so they must remain stable.
type LockerStatus string

const (
    StatusFree     LockerStatus = "FREE"     // available for assignment
    StatusReserved LockerStatus = "RESERVED" // claimed by a live session, not yet actuated
    StatusOwned    LockerStatus = "OWNED"    // assigned to an owner
    StatusOpening  LockerStatus = "OPENING"  // claimed, waiting on hardware confirmation
    StatusBlocked  LockerStatus = "BLOCKED"  // taken out of service by staff
    StatusError    LockerStatus = "ERROR"    // hardware actuation failed; needs operator reset
)

// OwnerType categorises the entity holding a locker.
type OwnerType string

const (
    OwnerRFID   OwnerType = "rfid"   // held by a scanned RFID card
    OwnerDevice OwnerType = "device" // held by a device identifier
    OwnerVIP    OwnerType = "vip"    // held under a VIP contract
)

// Locker is the durable record for one physical locker.  Identity is the
// composite (KioskID, LockerID) and never changes after creation.  Version
// increments on every committed mutation and is the compare-and-set token
// used by the repository layer; no two writers can both succeed against the
// same prior version.
//
// OwnerType and OwnerKey are either both set or both empty.  A FREE locker
// must have no owner fields set.  IsVIP is a long-lived flag independent of
// current occupancy.
type Locker struct {
    KioskID     string       // identifier of the kiosk this locker belongs to
    LockerID    uint64       // locker number within the kiosk, 1-based
    Status      LockerStatus // current occupancy status
    OwnerType   OwnerType    // category of the current owner, empty when free
    OwnerKey    string       // RFID number, device id or contract id, empty when free
    ReservedAt  *time.Time   // when the current reservation was taken, if any
    OwnedAt     *time.Time   // when the current assignment was made, if any
    Version     uint64       // CAS token, strictly increasing
    IsVIP       bool         // VIP override independent of occupancy
    DisplayName string       // optional human label shown on the panel
    UpdatedAt   time.Time    // last successful mutation
}

// HasOwner reports whether the locker currently records an owner.
func (l Locker) HasOwner() bool {
    return l.OwnerType != "" && l.OwnerKey != ""
}

// ClearOwner removes the owner fields and occupancy timestamps.  Callers
// mutating a locker back to FREE must use this to keep the no-owner-when-free
// invariant.
func (l *Locker) ClearOwner() {
    l.OwnerType = ""
    l.OwnerKey = ""
    l.ReservedAt = nil
    l.OwnedAt = nil
}
