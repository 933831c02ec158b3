package model

import "time"

// Reservation status values.  A reservation is created PENDING at intake
// time, transitions exactly once to CONFIRMED or CANCELLED by the
// confirmation worker, and a CONFIRMED reservation may later move to
// CANCELLED through the cancellation path.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

// Reservation records a camper's (or team's) claim on a slot.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – user who made the reservation.
//  SlotID      – slot being reserved.
//  GroupNumber – team number for TEAM-mode events, nil otherwise.
//  Status      – PENDING, CONFIRMED or CANCELLED.
//  ReservedAt  – creation timestamp.
//  UpdatedAt   – last status change.
//
// Invariant: per slot, at most one reservation with status in
// {PENDING, CONFIRMED} exists per user (individual mode) or per group
// number (team mode).  The confirmation worker enforces this inside the
// durable transaction.
type Reservation struct {
	ID          uint64    // reservations.id
	UserID      uint64    // reservations.user_id
	SlotID      uint64    // reservations.slot_id
	GroupNumber *uint32   // reservations.group_number (nullable)
	Status      string    // reservations.status
	ReservedAt  time.Time // reservations.reserved_at
	UpdatedAt   time.Time // reservations.updated_at
}

// Active reports whether the reservation still occupies (or may come to
// occupy) a seat, i.e. its status is PENDING or CONFIRMED.
func (r Reservation) Active() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}
