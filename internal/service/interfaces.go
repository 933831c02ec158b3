package service

import (
	"context"

	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/queue"
)

// The services depend on narrow interfaces rather than the concrete
// repository and infrastructure types so tests can substitute mocks.
// The MySQL repositories, the Redis ledger, the waiting room and the
// AMQP publisher satisfy these structurally.

// Ledger is the fast stock counter pre-check.
type Ledger interface {
	Decrement(ctx context.Context, slotID uint64) (bool, error)
	Increment(ctx context.Context, slotID uint64, maxCapacity int64, reason string) (int64, error)
}

// TokenGate is the reservation-authorization side of the waiting room.
type TokenGate interface {
	HasValidToken(ctx context.Context, eventID, userID uint64) (bool, error)
	InvalidateToken(ctx context.Context, eventID, userID uint64) error
}

// JobPublisher enqueues confirmation jobs.
type JobPublisher interface {
	PublishConfirmReservation(ctx context.Context, job queue.ConfirmReservationJob) error
}

// ReservationStore is the non-transactional reservation access used by
// intake and by the worker's failure branch.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	SetStatus(ctx context.Context, id uint64, status string) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
}

// SlotCatalog is the slot metadata provider.
type SlotCatalog interface {
	GetByID(ctx context.Context, id uint64) (*model.Slot, error)
	CapacityByID(ctx context.Context, slotID uint64) (*model.SlotCapacity, error)
}

// EventCatalog is the event metadata provider.
type EventCatalog interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// UserDirectory resolves users for eligibility and group lookups.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}
