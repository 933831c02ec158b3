package model

import "time"

// Slot describes a reservable time slot of an event.  Capacity lives in
// the companion SlotCapacity row so that the hot conditional update
// touches a single narrow row.
type Slot struct {
	ID        uint64    // slots.id
	EventID   uint64    // slots.event_id
	Title     string    // slots.title
	StartsAt  time.Time // slots.starts_at
	EndsAt    time.Time // slots.ends_at
	CreatedAt time.Time // slots.created_at
}

// SlotCapacity is the authoritative capacity row for a slot and the only
// durable record mutated under the optimistic-lock discipline.  Version
// increments on every successful mutation; CurrentCount is bounded by
// 0 <= CurrentCount <= MaxCapacity at all times.
//
// The Redis stock counter mirrors MaxCapacity-CurrentCount but is only a
// throttle; this row is the source of truth for "no overselling".
type SlotCapacity struct {
	SlotID       uint64 // slot_capacities.slot_id (primary key)
	EventID      uint64 // slot_capacities.event_id
	MaxCapacity  int64  // slot_capacities.max_capacity
	CurrentCount int64  // slot_capacities.current_count
	Version      uint64 // slot_capacities.version (optimistic concurrency token)
}

// Remaining returns the number of unclaimed seats according to the
// durable count.  Used to seed the Redis stock counter.
func (c SlotCapacity) Remaining() int64 {
	r := c.MaxCapacity - c.CurrentCount
	if r < 0 {
		return 0
	}
	return r
}
