// Package repository defines error types that are reused across the
// persistence layer. These sentinel values allow higher layers such as
// the state machine and HTTP handlers to distinguish between failure
// scenarios with errors.Is instead of inspecting error text. For
// example, ErrVersionConflict signals that another actor committed a
// write against the same prior version, while ErrLockerNotFound means
// no record exists for the requested identity.
package repository

import "errors"

// ErrLockerNotFound is returned when no locker exists for the requested
// (kiosk_id, locker_id) pair. Handlers should translate this into an
// HTTP 404 response.
var ErrLockerNotFound = errors.New("locker not found")

// ErrVersionConflict is returned when a compare-and-set write observes a
// stored version different from the one the caller read. The store never
// retries internally; the caller must re-read and either retry with fresh
// state or surface the locker as unavailable. Handlers should translate
// this into an HTTP 409 response.
var ErrVersionConflict = errors.New("version conflict")
