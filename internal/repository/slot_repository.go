package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opencamp/slot-reservation/internal/model"
)

// SlotRepo provides data access to the slots and slot_capacities tables.
// A slot's metadata and its capacity row are created together so that a
// slot can never exist without an authoritative capacity record.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// CreateWithCapacity inserts the slot row and its capacity row in one
// transaction.  The capacity row starts at current_count=0, version=1.
// The generated slot ID is populated on the provided model.
func (r *SlotRepo) CreateWithCapacity(ctx context.Context, s *model.Slot, maxCapacity int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const insSlot = `INSERT INTO slots (event_id, title, starts_at, ends_at) VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insSlot, s.EventID, s.Title, s.StartsAt, s.EndsAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)

	const insCap = `INSERT INTO slot_capacities (slot_id, event_id, max_capacity, current_count, version) VALUES (?, ?, ?, 0, 1)`
	if _, err := tx.ExecContext(ctx, insCap, s.ID, s.EventID, maxCapacity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID loads slot metadata.  Returns ErrSlotNotFound on a miss.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	const q = `SELECT id, event_id, title, starts_at, ends_at, created_at FROM slots WHERE id = ?`
	var s model.Slot
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.EventID, &s.Title, &s.StartsAt, &s.EndsAt, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CapacityByID loads the authoritative capacity row outside of any
// transaction.  Used by availability browsing and the startup resync.
func (r *SlotRepo) CapacityByID(ctx context.Context, slotID uint64) (*model.SlotCapacity, error) {
	const q = `SELECT slot_id, event_id, max_capacity, current_count, version FROM slot_capacities WHERE slot_id = ?`
	var c model.SlotCapacity
	err := r.db.QueryRowContext(ctx, q, slotID).Scan(
		&c.SlotID, &c.EventID, &c.MaxCapacity, &c.CurrentCount, &c.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCapacities returns every capacity row.  The stock ledger re-derives
// all counters from this list at process start.
func (r *SlotRepo) ListCapacities(ctx context.Context) ([]model.SlotCapacity, error) {
	const q = `SELECT slot_id, event_id, max_capacity, current_count, version FROM slot_capacities`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SlotCapacity
	for rows.Next() {
		var c model.SlotCapacity
		if err := rows.Scan(&c.SlotID, &c.EventID, &c.MaxCapacity, &c.CurrentCount, &c.Version); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByEvent returns the slots of an event together with their capacity
// rows, ordered by start time.  Used by the public availability browse.
func (r *SlotRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Slot, []model.SlotCapacity, error) {
	const q = `SELECT s.id, s.event_id, s.title, s.starts_at, s.ends_at, s.created_at,
		c.max_capacity, c.current_count, c.version
		FROM slots s JOIN slot_capacities c ON c.slot_id = s.id
		WHERE s.event_id = ? ORDER BY s.starts_at`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	var caps []model.SlotCapacity
	for rows.Next() {
		var s model.Slot
		var c model.SlotCapacity
		if err := rows.Scan(&s.ID, &s.EventID, &s.Title, &s.StartsAt, &s.EndsAt, &s.CreatedAt,
			&c.MaxCapacity, &c.CurrentCount, &c.Version); err != nil {
			return nil, nil, err
		}
		c.SlotID = s.ID
		c.EventID = s.EventID
		slots = append(slots, s)
		caps = append(caps, c)
	}
	return slots, caps, rows.Err()
}
