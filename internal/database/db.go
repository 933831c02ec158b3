// Package database opens the MySQL pool backing the durable reservation
// state: events, slots, the slot_capacities rows mutated under the
// optimistic lock, and the reservations themselves.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Config carries the connection parameters and pool sizing.  The pool
// is shared by the HTTP handlers and the confirmation worker pool, so
// MaxOpenConns should leave headroom above CONFIRM_WORKERS; zero values
// fall back to defaults sized for that split.
type Config struct {
	User string
	Pass string // empty allowed
	Host string
	Port string
	Name string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// dsn renders the driver connection string.  parseTime maps DATETIME
// columns onto time.Time, and loc=UTC keeps reserved_at/updated_at
// comparisons stable regardless of server zone.
func (c Config) dsn() string {
	auth := c.User
	if c.Pass != "" {
		auth = fmt.Sprintf("%s:%s", c.User, c.Pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.Host, c.Port, c.Name)
}

// poolSettings normalizes the pool knobs: unset values get defaults and
// the idle count never exceeds the open cap.
func (c Config) poolSettings() (maxOpen, maxIdle int, lifetime time.Duration) {
	maxOpen = c.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle = c.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	lifetime = c.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	return maxOpen, maxIdle, lifetime
}

// Open connects to MySQL and verifies the pool with a short ping.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, err
	}

	maxOpen, maxIdle, lifetime := cfg.poolSettings()
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
