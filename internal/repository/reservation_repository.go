package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opencamp/slot-reservation/internal/model"
)

// ReservationRepo provides CRUD operations for reservations.  A
// reservation is created PENDING synchronously at intake time; the
// asynchronous confirmation worker later moves it to a terminal state
// inside the capacity transaction (see CapacityTxRunner).  All timestamp
// fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts a new reservation and populates the generated ID and
// timestamps on the provided model.  Status should be a valid
// enumeration value ('PENDING','CONFIRMED','CANCELLED').
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (user_id, slot_id, group_number, status) VALUES (?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, res.UserID, res.SlotID, res.GroupNumber, res.Status)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults.
	const sel = `SELECT id, user_id, slot_id, group_number, status, reserved_at, updated_at FROM reservations WHERE id = ?`
	return r.db.QueryRowContext(ctx, sel, res.ID).Scan(
		&res.ID, &res.UserID, &res.SlotID, &res.GroupNumber, &res.Status, &res.ReservedAt, &res.UpdatedAt,
	)
}

// GetByID loads a reservation.  Returns ErrReservationNotFound on a miss.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const q = `SELECT id, user_id, slot_id, group_number, status, reserved_at, updated_at FROM reservations WHERE id = ?`
	var res model.Reservation
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&res.ID, &res.UserID, &res.SlotID, &res.GroupNumber, &res.Status, &res.ReservedAt, &res.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SetStatus updates a reservation's status outside of any transaction.
// The confirmation worker uses it on the failure branch, where the
// CANCELLED mark must be committed regardless of the aborted capacity
// transaction.
func (r *ReservationRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	const q = `UPDATE reservations SET status = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, q, status, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// ListByUser returns the caller's reservations, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	const q = `SELECT id, user_id, slot_id, group_number, status, reserved_at, updated_at FROM reservations WHERE user_id = ? ORDER BY reserved_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.SlotID, &res.GroupNumber, &res.Status, &res.ReservedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
