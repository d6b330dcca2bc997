// Package engine implements the locker state machine.  It is the only
// component allowed to decide a terminal ERROR locker state; the session
// manager and HTTP handlers merely relay its outcomes.
//
// Every transition that changes physical state composes three steps: a
// compare-and-set to the transient OPENING status that claims exclusivity,
// the hardware pulse, and a second compare-and-set to the final status
// based on the hardware outcome.  Only one caller can win the first CAS
// for a given version, so concurrent staff and kiosk actors can never
// double-assign a locker no matter what the UIs display.
package engine

import (
    "context"
    "errors"
    "log"
    "time"

    "github.com/lokkit/kiosk-server/internal/model"
    "github.com/lokkit/kiosk-server/internal/repository"
)

// ErrInvalidTransition is returned when the requested event is not legal
// from the locker's current status.  This is a client error and is never
// retried automatically.
var ErrInvalidTransition = errors.New("invalid transition")

// Actuator executes a relay command and reports a terminal outcome.  The
// hardware executor satisfies this; tests substitute fakes.
type Actuator interface {
    Execute(ctx context.Context, cmd *model.HardwareCommand) error
}

// Publisher receives every committed state change.  The broadcast hub and
// the AMQP publisher both sit behind this interface.
type Publisher interface {
    Publish(ev model.StateUpdateEvent)
}

// StateMachine orchestrates store updates and hardware calls as single
// logical operations.
type StateMachine struct {
    store repository.LockerStore
    act   Actuator
    pub   Publisher
}

// New constructs a StateMachine.  All dependencies must be non-nil.
func New(store repository.LockerStore, act Actuator, pub Publisher) *StateMachine {
    if store == nil || act == nil || pub == nil {
        panic("nil dependency passed to engine.New")
    }
    return &StateMachine{store: store, act: act, pub: pub}
}

// Reserve claims a FREE locker for a session.  The caller supplies the
// version it read; losing the CAS means another actor took the locker
// first and the caller should surface it as unavailable.
func (m *StateMachine) Reserve(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error) {
    now := time.Now().UTC()
    return m.commit(ctx, kioskID, lockerID, expectedVersion, func(l *model.Locker) error {
        if l.Status != model.StatusFree {
            return ErrInvalidTransition
        }
        l.Status = model.StatusReserved
        l.ReservedAt = &now
        return nil
    })
}

// ReleaseReservation returns a RESERVED locker to FREE without touching
// hardware.  It is used when a session expires or is cancelled before the
// selection completed.
func (m *StateMachine) ReleaseReservation(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error) {
    return m.commit(ctx, kioskID, lockerID, expectedVersion, func(l *model.Locker) error {
        if l.Status != model.StatusReserved {
            return ErrInvalidTransition
        }
        l.Status = model.StatusFree
        l.ClearOwner()
        return nil
    })
}

// ConfirmSelect finishes an assignment for a locker previously moved to
// RESERVED: it claims the record as OPENING, pulses the relay and commits
// OWNED with the given owner on success.  If the pulse fails after the
// claim succeeded, the locker moves to ERROR rather than silently back to
// FREE, so a physically uncertain door is never presented as available.
func (m *StateMachine) ConfirmSelect(ctx context.Context, kioskID string, lockerID, reservedVersion uint64, ownerType model.OwnerType, ownerKey string) (model.Locker, error) {
    opening, err := m.commit(ctx, kioskID, lockerID, reservedVersion, func(l *model.Locker) error {
        if l.Status != model.StatusReserved {
            return ErrInvalidTransition
        }
        l.Status = model.StatusOpening
        return nil
    })
    if err != nil {
        return model.Locker{}, err
    }

    hwErr := m.act.Execute(ctx, commandFor(opening))
    if hwErr != nil {
        failed, ferr := m.finalize(ctx, kioskID, lockerID, opening.Version, func(l *model.Locker) error {
            l.Status = model.StatusError
            return nil
        })
        if ferr != nil {
            return model.Locker{}, ferr
        }
        return failed, hwErr
    }

    now := time.Now().UTC()
    return m.finalize(ctx, kioskID, lockerID, opening.Version, func(l *model.Locker) error {
        l.Status = model.StatusOwned
        l.OwnerType = ownerType
        l.OwnerKey = ownerKey
        l.OwnedAt = &now
        l.ReservedAt = nil
        return nil
    })
}

// Release gives an OWNED locker back: claim as OPENING, pulse so the user
// can retrieve their belongings, then commit FREE with owner fields
// cleared.  A failed pulse parks the locker in ERROR with the owner kept
// on the record so staff can see whose assignment is stuck.
func (m *StateMachine) Release(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error) {
    opening, err := m.commit(ctx, kioskID, lockerID, expectedVersion, func(l *model.Locker) error {
        if l.Status != model.StatusOwned {
            return ErrInvalidTransition
        }
        l.Status = model.StatusOpening
        return nil
    })
    if err != nil {
        return model.Locker{}, err
    }

    hwErr := m.act.Execute(ctx, commandFor(opening))
    if hwErr != nil {
        failed, ferr := m.finalize(ctx, kioskID, lockerID, opening.Version, func(l *model.Locker) error {
            l.Status = model.StatusError
            return nil
        })
        if ferr != nil {
            return model.Locker{}, ferr
        }
        return failed, hwErr
    }

    return m.finalize(ctx, kioskID, lockerID, opening.Version, func(l *model.Locker) error {
        l.Status = model.StatusFree
        l.ClearOwner()
        return nil
    })
}

// MasterOpen is the operator override: it pulses the door through the same
// claim path as any other transition but restores the prior occupancy on
// success, so an owned locker stays owned after staff open it.
func (m *StateMachine) MasterOpen(ctx context.Context, kioskID string, lockerID uint64) (model.Locker, error) {
    current, err := m.store.Get(ctx, kioskID, lockerID)
    if err != nil {
        return model.Locker{}, err
    }
    prior := current.Status
    switch prior {
    case model.StatusOpening, model.StatusError:
        // Busy or physically uncertain; the reset flow handles ERROR.
        return model.Locker{}, ErrInvalidTransition
    }
    opening, err := m.commit(ctx, kioskID, lockerID, current.Version, func(l *model.Locker) error {
        if l.Status != prior {
            return repository.ErrVersionConflict
        }
        l.Status = model.StatusOpening
        return nil
    })
    if err != nil {
        return model.Locker{}, err
    }

    hwErr := m.act.Execute(ctx, commandFor(opening))
    if hwErr != nil {
        failed, ferr := m.finalize(ctx, kioskID, lockerID, opening.Version, func(l *model.Locker) error {
            l.Status = model.StatusError
            return nil
        })
        if ferr != nil {
            return model.Locker{}, ferr
        }
        return failed, hwErr
    }

    return m.finalize(ctx, kioskID, lockerID, opening.Version, func(l *model.Locker) error {
        l.Status = prior
        return nil
    })
}

// Block takes a locker out of service.  Owner fields are kept so staff can
// see who held it before the block.
func (m *StateMachine) Block(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error) {
    return m.commit(ctx, kioskID, lockerID, expectedVersion, func(l *model.Locker) error {
        switch l.Status {
        case model.StatusFree, model.StatusReserved, model.StatusOwned:
            l.Status = model.StatusBlocked
            return nil
        }
        return ErrInvalidTransition
    })
}

// Unblock returns a BLOCKED locker to service as FREE.
func (m *StateMachine) Unblock(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error) {
    return m.commit(ctx, kioskID, lockerID, expectedVersion, func(l *model.Locker) error {
        if l.Status != model.StatusBlocked {
            return ErrInvalidTransition
        }
        l.Status = model.StatusFree
        l.ClearOwner()
        return nil
    })
}

// Reset clears an ERROR locker back to FREE after an operator has verified
// the hardware.  It never fires the relay.
func (m *StateMachine) Reset(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error) {
    return m.commit(ctx, kioskID, lockerID, expectedVersion, func(l *model.Locker) error {
        if l.Status != model.StatusError {
            return ErrInvalidTransition
        }
        l.Status = model.StatusFree
        l.ClearOwner()
        return nil
    })
}

// commit performs one CAS write and publishes the committed record.
func (m *StateMachine) commit(ctx context.Context, kioskID string, lockerID, expectedVersion uint64, mutate repository.Mutator) (model.Locker, error) {
    l, err := m.store.CompareAndSet(ctx, kioskID, lockerID, expectedVersion, mutate)
    if err != nil {
        return model.Locker{}, err
    }
    m.pub.Publish(model.EventFrom(l))
    return l, nil
}

// finalize commits the post-hardware status.  The record is in OPENING and
// exclusively ours, so a conflict here means an out-of-band write; it is
// retried once against the fresh version and logged if it persists.
func (m *StateMachine) finalize(ctx context.Context, kioskID string, lockerID, openingVersion uint64, mutate repository.Mutator) (model.Locker, error) {
    l, err := m.commit(ctx, kioskID, lockerID, openingVersion, mutate)
    if !errors.Is(err, repository.ErrVersionConflict) {
        return l, err
    }
    current, gerr := m.store.Get(ctx, kioskID, lockerID)
    if gerr != nil {
        return model.Locker{}, gerr
    }
    if current.Status != model.StatusOpening {
        log.Printf("engine: kiosk=%s locker=%d left OPENING out of band (status=%s)", kioskID, lockerID, current.Status)
        return model.Locker{}, repository.ErrVersionConflict
    }
    return m.commit(ctx, kioskID, lockerID, current.Version, mutate)
}

// commandFor maps a locker to its relay command.  Locker ids are 1-based;
// coil addresses on the relay board start at zero.
func commandFor(l model.Locker) *model.HardwareCommand {
    return &model.HardwareCommand{
        KioskID:      l.KioskID,
        LockerID:     l.LockerID,
        RelayChannel: uint16(l.LockerID - 1),
    }
}
