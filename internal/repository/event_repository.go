package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opencamp/slot-reservation/internal/model"
)

// EventRepo provides data access to the events table.  Events are the
// anchor for waiting rooms and own the attributes consulted by the
// eligibility check (track restriction and organization).
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Create inserts a new event and populates the generated ID on the
// provided model.  ParticipationMode must be INDIVIDUAL or TEAM; the
// column is an enum so invalid values fail at the database.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (title, track, participation_mode, organization_id) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.Track, e.ParticipationMode, e.OrganizationID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID loads a single event.  Returns ErrEventNotFound on a miss.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT id, title, track, participation_mode, organization_id, created_at FROM events WHERE id = ?`
	var e model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.Title, &e.Track, &e.ParticipationMode, &e.OrganizationID, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
