package waitingroom

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/opencamp/slot-reservation/internal/metrics"
	"github.com/opencamp/slot-reservation/internal/model"
)

// ErrTokenIssuanceExhausted is returned when token creation keeps losing
// the expiry race after the bounded number of attempts.  It is transient;
// the client's next poll retries.
var ErrTokenIssuanceExhausted = errors.New("token issuance exhausted")

// tokenIssueAttempts bounds the retry loop around the set-if-not-exists
// race window in IssueToken.
const tokenIssueAttempts = 3

// EligibilityChecker validates that a user may join an event's waiting
// room (track restriction and organization membership).  Implemented by
// the service layer; the waiting room only propagates its error.
type EligibilityChecker interface {
	IsEligibleForEvent(ctx context.Context, userID, eventID uint64) error
}

// Config carries the waiting-room policy knobs.
type Config struct {
	// AdmissionWindow is the batch threshold: a user whose rank is below
	// it gets a token on their next status poll.
	AdmissionWindow int64
	// TokenTTL bounds how long an admitted user has to reserve.
	TokenTTL time.Duration
	// HeartbeatTTL is how long a user may go without polling before the
	// sweeper evicts them.
	HeartbeatTTL time.Duration
}

// Room implements the admission queue contract on top of Store.
// Admission is pull-based: reaching the front converts into a token on
// the user's own Status poll, never via a server push.
type Room struct {
	store    *Store
	eligible EligibilityChecker
	cfg      Config
	now      func() time.Time // overridable in tests
}

// NewRoom constructs a Room.  The eligibility checker may be nil when
// entry validation is handled elsewhere (tests).
func NewRoom(store *Store, eligible EligibilityChecker, cfg Config) *Room {
	return &Room{store: store, eligible: eligible, cfg: cfg, now: time.Now}
}

// Enter validates eligibility and inserts (or refreshes) the caller's
// queue entry.  Re-entry replaces only the session pointer and refreshes
// the heartbeat; the returned position is the current zero-based rank.
func (r *Room) Enter(ctx context.Context, eventID, userID uint64, sessionID string) (model.EnterResult, error) {
	if r.eligible != nil {
		if err := r.eligible.IsEligibleForEvent(ctx, userID, eventID); err != nil {
			return model.EnterResult{}, err
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	isNew, rank, total, err := r.store.Enter(ctx, eventID, userID, sessionID, r.now())
	if err != nil {
		return model.EnterResult{}, err
	}
	metrics.QueueDepth.WithLabelValues(strconv.FormatUint(eventID, 10)).Set(float64(total))
	return model.EnterResult{Position: rank, IsNew: isNew, TotalWaiting: total}, nil
}

// Status reports the caller's queue state.  A live token is returned
// directly.  Otherwise, a rank below the admission window converts into
// a token on this very poll; a rank at or above it refreshes the
// heartbeat and reports the position.
func (r *Room) Status(ctx context.Context, eventID, userID uint64) (model.QueueStatus, error) {
	if val, exp, ok, err := r.store.Token(ctx, eventID, userID); err != nil {
		return model.QueueStatus{}, err
	} else if ok {
		return model.QueueStatus{HasToken: true, Token: val, TokenExpiresAt: &exp}, nil
	}

	rank, queued, err := r.store.Rank(ctx, eventID, userID)
	if err != nil {
		return model.QueueStatus{}, err
	}
	if !queued {
		return model.QueueStatus{}, nil
	}
	total, err := r.store.Total(ctx, eventID)
	if err != nil {
		return model.QueueStatus{}, err
	}
	metrics.QueueDepth.WithLabelValues(strconv.FormatUint(eventID, 10)).Set(float64(total))

	if err := r.store.TouchHeartbeat(ctx, eventID, userID, r.now()); err != nil {
		return model.QueueStatus{}, err
	}
	if rank >= r.cfg.AdmissionWindow {
		return model.QueueStatus{InQueue: true, Position: rank, TotalWaiting: total}, nil
	}

	token, exp, err := r.IssueToken(ctx, eventID, userID)
	if err != nil {
		return model.QueueStatus{}, err
	}
	return model.QueueStatus{HasToken: true, Token: token, TokenExpiresAt: &exp, TotalWaiting: total}, nil
}

// IssueToken atomically creates the admission token (set-if-not-exists)
// and vacates the caller's queue slot.  Losing the creation race returns
// the already-issued token.  The expired-between-create-and-read window
// is retried a bounded number of times before surfacing
// ErrTokenIssuanceExhausted.
func (r *Room) IssueToken(ctx context.Context, eventID, userID uint64) (string, time.Time, error) {
	for attempt := 0; attempt < tokenIssueAttempts; attempt++ {
		value := uuid.NewString()
		created, existing, err := r.store.TryIssueToken(ctx, eventID, userID, value, r.cfg.TokenTTL)
		if err != nil {
			return "", time.Time{}, err
		}
		if created {
			return value, r.now().Add(r.cfg.TokenTTL), nil
		}
		if existing != "" {
			// Another call won the race; hand back its token with the
			// remaining TTL.
			if val, exp, ok, err := r.store.Token(ctx, eventID, userID); err == nil && ok {
				return val, exp, nil
			}
			// Token expired between the failed create and the read; retry.
		}
	}
	return "", time.Time{}, ErrTokenIssuanceExhausted
}

// HasValidToken is the reservation-authorization gate.
func (r *Room) HasValidToken(ctx context.Context, eventID, userID uint64) (bool, error) {
	return r.store.HasToken(ctx, eventID, userID)
}

// InvalidateToken removes the caller's admission token, e.g. once the
// reservation attempt it authorized has been accepted.
func (r *Room) InvalidateToken(ctx context.Context, eventID, userID uint64) error {
	return r.store.DeleteToken(ctx, eventID, userID)
}

// CleanupExpiredUsers evicts every entry whose heartbeat is older than
// the heartbeat TTL and returns how many were removed.
func (r *Room) CleanupExpiredUsers(ctx context.Context, eventID uint64) (int64, error) {
	cutoff := r.now().Add(-r.cfg.HeartbeatTTL)
	removed, err := r.store.CleanupExpired(ctx, eventID, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.SweeperEvictions.Add(float64(removed))
	}
	return removed, nil
}
