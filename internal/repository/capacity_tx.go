package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opencamp/slot-reservation/internal/model"
)

// CapacityTx is the transactional surface the confirmation worker and the
// cancellation path run against.  Every method executes on the same
// *sql.Tx, so the loaded capacity version and the conditional update are
// part of one durable transaction.  Two workers may still load the same
// version concurrently; the WHERE version=? clause is what serializes
// them at commit time.
type CapacityTx interface {
	// SlotCapacity loads the capacity row.  Returns ErrSlotNotFound on a miss.
	SlotCapacity(ctx context.Context, slotID uint64) (*model.SlotCapacity, error)
	// HasOtherActiveByUser reports whether another PENDING/CONFIRMED
	// reservation by the same user exists on the slot, excluding the
	// given reservation ID.
	HasOtherActiveByUser(ctx context.Context, slotID, userID, excludeID uint64) (bool, error)
	// HasOtherActiveByGroup is the TEAM-mode variant, keyed by group number.
	HasOtherActiveByGroup(ctx context.Context, slotID uint64, groupNumber uint32, excludeID uint64) (bool, error)
	// IncrementCount applies currentCount+1, version+1 guarded by the
	// loaded version and currentCount<maxCapacity.  Returns false with a
	// nil error when zero rows were affected.
	IncrementCount(ctx context.Context, slotID, version uint64) (bool, error)
	// DecrementCount applies currentCount-1, version+1 guarded by the
	// loaded version and currentCount>0.
	DecrementCount(ctx context.Context, slotID, version uint64) (bool, error)
	// SetReservationStatus updates the reservation row inside the transaction.
	SetReservationStatus(ctx context.Context, reservationID uint64, status string) error
}

// CapacityTxRunner opens capacity transactions.  Services depend on this
// interface so tests can substitute an in-memory fake.
type CapacityTxRunner interface {
	// WithinTx begins a transaction, invokes fn, and commits when fn
	// returns nil.  Any error from fn (or from commit) rolls back and is
	// returned unchanged so callers can match sentinel errors.
	WithinTx(ctx context.Context, fn func(tx CapacityTx) error) error
}

// SQLCapacityTxRunner is the MySQL implementation of CapacityTxRunner.
type SQLCapacityTxRunner struct {
	db *sql.DB
}

// NewCapacityTxRunner returns a runner bound to the given database.
func NewCapacityTxRunner(db *sql.DB) *SQLCapacityTxRunner { return &SQLCapacityTxRunner{db: db} }

// WithinTx implements CapacityTxRunner.
func (r *SQLCapacityTxRunner) WithinTx(ctx context.Context, fn func(tx CapacityTx) error) error {
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
	if err := fn(&sqlCapacityTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type sqlCapacityTx struct {
	tx *sql.Tx
}

func (t *sqlCapacityTx) SlotCapacity(ctx context.Context, slotID uint64) (*model.SlotCapacity, error) {
	const q = `SELECT slot_id, event_id, max_capacity, current_count, version FROM slot_capacities WHERE slot_id = ?`
	var c model.SlotCapacity
	err := t.tx.QueryRowContext(ctx, q, slotID).Scan(
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

func (t *sqlCapacityTx) HasOtherActiveByUser(ctx context.Context, slotID, userID, excludeID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE slot_id = ? AND user_id = ? AND id <> ? AND status IN ('PENDING','CONFIRMED'))`
	var exists bool
	if err := t.tx.QueryRowContext(ctx, q, slotID, userID, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (t *sqlCapacityTx) HasOtherActiveByGroup(ctx context.Context, slotID uint64, groupNumber uint32, excludeID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE slot_id = ? AND group_number = ? AND id <> ? AND status IN ('PENDING','CONFIRMED'))`
	var exists bool
	if err := t.tx.QueryRowContext(ctx, q, slotID, groupNumber, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (t *sqlCapacityTx) IncrementCount(ctx context.Context, slotID, version uint64) (bool, error) {
	const q = `UPDATE slot_capacities SET current_count = current_count + 1, version = version + 1
		WHERE slot_id = ? AND version = ? AND current_count < max_capacity`
	res, err := t.tx.ExecContext(ctx, q, slotID, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *sqlCapacityTx) DecrementCount(ctx context.Context, slotID, version uint64) (bool, error) {
	const q = `UPDATE slot_capacities SET current_count = current_count - 1, version = version + 1
		WHERE slot_id = ? AND version = ? AND current_count > 0`
	res, err := t.tx.ExecContext(ctx, q, slotID, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *sqlCapacityTx) SetReservationStatus(ctx context.Context, reservationID uint64, status string) error {
	const q = `UPDATE reservations SET status = ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, status, reservationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReservationNotFound
	}
	return nil
}
