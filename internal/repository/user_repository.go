package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/opencamp/slot-reservation/internal/model"
)

// UserRepo provides data access to the users table.  Besides identity it
// stores the eligibility attributes (track, organization, group number)
// consulted by the waiting room and the reservation intake.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user.  Returns ErrEmailTaken when the unique
// email constraint is violated.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `INSERT INTO users (email, password_hash, role, track, organization_id, group_number) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, u.Email, u.PasswordHash, u.Role, u.Track, u.OrganizationID, u.GroupNumber)
	if err != nil {
		// 1062 is MySQL's duplicate-entry error; matching on the message
		// avoids importing the driver's error type here.
		if strings.Contains(err.Error(), "Duplicate entry") {
			return ErrEmailTaken
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail loads a user by email.  Returns ErrUserNotFound on a miss.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT id, email, password_hash, role, track, organization_id, group_number, created_at FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, q, email))
}

// GetByID loads a user by primary key.  Returns ErrUserNotFound on a miss.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	const q = `SELECT id, email, password_hash, role, track, organization_id, group_number, created_at FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *UserRepo) scanOne(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Track, &u.OrganizationID, &u.GroupNumber, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
