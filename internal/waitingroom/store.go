// Package waitingroom implements the per-event admission queue: an
// ordered set of waiting users scored by enrollment time, a parallel
// heartbeat set for liveness, and short-TTL admission tokens issued when
// a user reaches the front.  All state lives in Redis and is ephemeral;
// losing it on restart only means everyone re-enters the queue.
package waitingroom

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKeyFmt     = "waiting:queue:%d"
	heartbeatKeyFmt = "waiting:heartbeat:%d"
	tokenKeyFmt     = "waiting:token:%d:%d"
	sessionKeyFmt   = "waiting:session:%d:%d"
	eventsKey       = "waiting:events" // registry of events with live queues, read by the sweeper
)

// enterScript inserts a queue entry or, when the user is already queued,
// replaces only the session pointer and refreshes the heartbeat.  The
// FIFO score is never rewritten, so re-entry can never change position.
// KEYS: queue, heartbeat, session, registry.
// ARGV: userID, now(ms), sessionID, eventID.
// Returns {isNew, rank, total}.
var enterScript = redis.NewScript(`
	local existing = redis.call('ZSCORE', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[3], ARGV[3])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	redis.call('SADD', KEYS[4], ARGV[4])
	if existing then
		return {0, redis.call('ZRANK', KEYS[1], ARGV[1]), redis.call('ZCARD', KEYS[1])}
	end
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
	return {1, redis.call('ZRANK', KEYS[1], ARGV[1]), redis.call('ZCARD', KEYS[1])}
`)

// issueScript creates the admission token with set-if-not-exists
// semantics and, on success, removes the user from the queue and
// heartbeat sets and drops the session pointer so the queue slot is
// vacated atomically with the issuance.
// KEYS: token, queue, heartbeat, session.
// ARGV: tokenValue, ttlSeconds, userID.
// Returns {1, value} on creation, {0, existing} when a token already
// exists, {-1, ''} when the create lost and the existing token expired
// in between (callers retry).
var issueScript = redis.NewScript(`
	local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2])
	if ok then
		redis.call('ZREM', KEYS[2], ARGV[3])
		redis.call('ZREM', KEYS[3], ARGV[3])
		redis.call('DEL', KEYS[4])
		return {1, ARGV[1]}
	end
	local existing = redis.call('GET', KEYS[1])
	if existing then
		return {0, existing}
	end
	return {-1, ''}
`)

// Store wraps the Redis operations of the waiting room.  It holds no
// policy; TTLs and thresholds live in Room.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store bound to the given Redis client.
func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func queueKey(eventID uint64) string     { return fmt.Sprintf(queueKeyFmt, eventID) }
func heartbeatKey(eventID uint64) string { return fmt.Sprintf(heartbeatKeyFmt, eventID) }
func tokenKey(eventID, userID uint64) string {
	return fmt.Sprintf(tokenKeyFmt, eventID, userID)
}
func sessionKey(eventID, userID uint64) string {
	return fmt.Sprintf(sessionKeyFmt, eventID, userID)
}
func member(userID uint64) string { return strconv.FormatUint(userID, 10) }

// Enter adds the user to the queue (or refreshes session+heartbeat on
// re-entry).  Returns isNew, the zero-based rank and the queue size.
func (s *Store) Enter(ctx context.Context, eventID, userID uint64, sessionID string, now time.Time) (bool, int64, int64, error) {
	keys := []string{queueKey(eventID), heartbeatKey(eventID), sessionKey(eventID, userID), eventsKey}
	res, err := enterScript.Run(ctx, s.rdb, keys,
		member(userID), now.UnixMilli(), sessionID, strconv.FormatUint(eventID, 10)).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("waitingroom: unexpected enter result %v", res)
	}
	return res[0] == 1, res[1], res[2], nil
}

// Rank returns the user's zero-based position, or ok=false when the user
// is not queued.
func (s *Store) Rank(ctx context.Context, eventID, userID uint64) (int64, bool, error) {
	rank, err := s.rdb.ZRank(ctx, queueKey(eventID), member(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

// Total returns the current queue size.
func (s *Store) Total(ctx context.Context, eventID uint64) (int64, error) {
	return s.rdb.ZCard(ctx, queueKey(eventID)).Result()
}

// TouchHeartbeat refreshes the user's liveness timestamp.  Polling is
// the only liveness signal: a client that stops calling Status will be
// evicted by the sweeper once the heartbeat ages out.
func (s *Store) TouchHeartbeat(ctx context.Context, eventID, userID uint64, now time.Time) error {
	return s.rdb.ZAdd(ctx, heartbeatKey(eventID), redis.Z{Score: float64(now.UnixMilli()), Member: member(userID)}).Err()
}

// TryIssueToken attempts the atomic token creation.  created is true
// when this call won; otherwise existing carries the already-issued
// value, or is empty when the race window hit (caller retries).
func (s *Store) TryIssueToken(ctx context.Context, eventID, userID uint64, value string, ttl time.Duration) (created bool, existing string, err error) {
	keys := []string{tokenKey(eventID, userID), queueKey(eventID), heartbeatKey(eventID), sessionKey(eventID, userID)}
	res, err := issueScript.Run(ctx, s.rdb, keys, value, int64(ttl/time.Second), member(userID)).Slice()
	if err != nil {
		return false, "", err
	}
	if len(res) != 2 {
		return false, "", fmt.Errorf("waitingroom: unexpected issue result %v", res)
	}
	code, _ := res[0].(int64)
	val, _ := res[1].(string)
	switch code {
	case 1:
		return true, "", nil
	case 0:
		return false, val, nil
	default:
		return false, "", nil
	}
}

// Token returns the live admission token and its expiry, or ok=false.
func (s *Store) Token(ctx context.Context, eventID, userID uint64) (string, time.Time, bool, error) {
	key := tokenKey(eventID, userID)
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	ttl, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return "", time.Time{}, false, err
	}
	return val, time.Now().Add(ttl), true, nil
}

// HasToken reports whether a live admission token exists.
func (s *Store) HasToken(ctx context.Context, eventID, userID uint64) (bool, error) {
	n, err := s.rdb.Exists(ctx, tokenKey(eventID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteToken removes the admission token.
func (s *Store) DeleteToken(ctx context.Context, eventID, userID uint64) error {
	return s.rdb.Del(ctx, tokenKey(eventID, userID)).Err()
}

// CleanupExpired evicts every user whose heartbeat is older than the
// cutoff: queue entry, heartbeat entry and session pointer go in one
// pipelined batch.  Idempotent; missing members are simply ignored.
func (s *Store) CleanupExpired(ctx context.Context, eventID uint64, cutoff time.Time) (int64, error) {
	stale, err := s.rdb.ZRangeByScore(ctx, heartbeatKey(eventID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	pipe := s.rdb.TxPipeline()
	for _, m := range stale {
		pipe.ZRem(ctx, queueKey(eventID), m)
		pipe.ZRem(ctx, heartbeatKey(eventID), m)
		if uid, perr := strconv.ParseUint(m, 10, 64); perr == nil {
			pipe.Del(ctx, sessionKey(eventID, uid))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int64(len(stale)), nil
}

// ActiveEvents lists the events that currently have (or recently had) a
// waiting room, for the sweeper to iterate.
func (s *Store) ActiveEvents(ctx context.Context) ([]uint64, error) {
	members, err := s.rdb.SMembers(ctx, eventsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseUint(m, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// DeregisterEvent drops an event from the sweeper registry once its
// queue and heartbeat sets are both empty.
func (s *Store) DeregisterEvent(ctx context.Context, eventID uint64) error {
	qn, err := s.rdb.ZCard(ctx, queueKey(eventID)).Result()
	if err != nil {
		return err
	}
	hn, err := s.rdb.ZCard(ctx, heartbeatKey(eventID)).Result()
	if err != nil {
		return err
	}
	if qn == 0 && hn == 0 {
		return s.rdb.SRem(ctx, eventsKey, strconv.FormatUint(eventID, 10)).Err()
	}
	return nil
}
