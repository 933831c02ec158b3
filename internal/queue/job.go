// Package queue defines the confirmation job payload exchanged over
// RabbitMQ plus the publisher and the worker-pool consumer that drains
// it.  The payload is a closed struct rather than a loosely-typed map so
// the worker cannot receive a shape it does not know.
package queue

// ConfirmQueueName is the durable queue carrying confirmation jobs.
const ConfirmQueueName = "reservation.confirm"

// ConfirmReservationJob instructs a worker to finalize one reservation
// against the durable store.  StockAlreadyDecremented tells the failure
// branch whether a compensating ledger increment is owed.
type ConfirmReservationJob struct {
	ReservationID           uint64  `json:"reservation_id"`
	UserID                  uint64  `json:"user_id"`
	SlotID                  uint64  `json:"slot_id"`
	EventID                 uint64  `json:"event_id"`
	MaxCapacity             int64   `json:"max_capacity"`
	GroupNumber             *uint32 `json:"group_number,omitempty"`
	StockAlreadyDecremented bool    `json:"stock_already_decremented"`
}
