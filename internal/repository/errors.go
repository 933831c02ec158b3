// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting SQL driver errors. For example,
// ErrSlotNotFound indicates that no capacity row exists for the
// requested slot, while ErrReservationNotFound signals a lookup miss
// on the reservations table.
package repository

import "errors"

// ErrSlotNotFound is returned when no slot (or slot capacity row) exists
// for the given identifier. Handlers translate it into an HTTP 404.
var ErrSlotNotFound = errors.New("slot not found")

// ErrEventNotFound is returned when no event exists for the given
// identifier.
var ErrEventNotFound = errors.New("event not found")

// ErrReservationNotFound is returned when a reservation lookup misses.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrUserNotFound is returned when a user lookup misses.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when registering with an email that already
// has an account. Handlers should translate this into an HTTP 409.
var ErrEmailTaken = errors.New("email already registered")
