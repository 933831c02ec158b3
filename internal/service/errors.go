// Package service holds the reservation business flows: the synchronous
// intake, the asynchronous confirmation state machine and the
// cancellation path.  Failures are typed sentinels so handlers can map
// each to a stable, user-presentable response instead of leaking
// infrastructure errors.
package service

import "errors"

// ErrSlotFull means the slot is effectively (ledger) or durably full.
// Presented as "sold out"; not retryable.
var ErrSlotFull = errors.New("slot full")

// ErrDuplicateReservation means the user already holds a PENDING or
// CONFIRMED reservation on the slot.
var ErrDuplicateReservation = errors.New("duplicate reservation")

// ErrTeamAlreadyReserved is the TEAM-mode duplicate: another member of
// the same group already holds an active reservation on the slot.
var ErrTeamAlreadyReserved = errors.New("team already reserved")

// ErrOptimisticLockConflict means a concurrent writer changed the
// capacity row between our read and write.  Expected under contention;
// presented as "please retry".
var ErrOptimisticLockConflict = errors.New("optimistic lock conflict")

// ErrUnauthorized means the caller does not own the resource.
var ErrUnauthorized = errors.New("unauthorized")

// ErrAlreadyCancelled means the reservation is already CANCELLED.
var ErrAlreadyCancelled = errors.New("reservation already cancelled")

// ErrReservationPending means the reservation has not been confirmed
// yet.  Only CONFIRMED reservations hold a durable seat, so there is
// nothing to release; the caller retries once the worker has settled it.
var ErrReservationPending = errors.New("reservation still pending confirmation")

// ErrTrackIneligible means the user's track or organization does not
// match the event's restriction.
var ErrTrackIneligible = errors.New("track ineligible")

// ErrAdmissionRequired means the caller has no live admission token and
// must go through the waiting room first.
var ErrAdmissionRequired = errors.New("admission token required")

// ErrGroupRequired means the event runs in TEAM mode but the caller has
// no group number on their profile.
var ErrGroupRequired = errors.New("group number required")
