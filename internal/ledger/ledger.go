// Package ledger implements the fast stock counter kept in Redis.  One
// integer per slot, mutated only through three Lua scripts so that no
// other operation can interleave with a check-and-modify.  The ledger is
// an admission throttle, not the source of truth: a failed Decrement
// means "effectively full" and sheds the request before it reaches the
// database, while the authoritative capacity check stays inside the
// durable optimistic-lock transaction.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencamp/slot-reservation/internal/metrics"
	"github.com/opencamp/slot-reservation/internal/model"
)

// Compensation reasons recorded when the counter is incremented back.
const (
	ReasonCancellation    = "cancellation"
	ReasonFailureRecovery = "failure_recovery"
)

// initScript sets the counter to max(0, maxCapacity-currentCount),
// overwriting any stale value.  ARGV[1]=maxCapacity, ARGV[2]=currentCount.
var initScript = redis.NewScript(`
	local remaining = tonumber(ARGV[1]) - tonumber(ARGV[2])
	if remaining < 0 then remaining = 0 end
	redis.call('SET', KEYS[1], remaining)
	return remaining
`)

// decrScript decrements only while the counter is positive.  A missing
// key counts as not admitted so that a cold or flushed cache fails
// closed rather than bypassing the capacity check.
var decrScript = redis.NewScript(`
	local v = tonumber(redis.call('GET', KEYS[1]) or '-1')
	if v > 0 then
		redis.call('DECR', KEYS[1])
		return 1
	end
	return 0
`)

// incrScript increments clamped at maxCapacity, defending against
// double-compensation.  ARGV[1]=maxCapacity.
var incrScript = redis.NewScript(`
	local max = tonumber(ARGV[1])
	local v = tonumber(redis.call('GET', KEYS[1]) or '0')
	if v < max then
		v = redis.call('INCR', KEYS[1])
	end
	return v
`)

// Client holds the Redis handle and the pre-loaded script handles.  It
// is constructed once at process start and passed to every caller; there
// is no package-level mutable state.
type Client struct {
	rdb *redis.Client
}

// New returns a ledger client bound to the given Redis client.
func New(rdb *redis.Client) *Client { return &Client{rdb: rdb} }

func stockKey(slotID uint64) string { return fmt.Sprintf("stock:%d", slotID) }

// Init sets the counter for a slot from durable numbers, overwriting any
// stale value.  Used at slot creation and by SyncAll.
func (c *Client) Init(ctx context.Context, slotID uint64, maxCapacity, currentCount int64) (int64, error) {
	start := time.Now()
	n, err := initScript.Run(ctx, c.rdb, []string{stockKey(slotID)}, maxCapacity, currentCount).Int64()
	metrics.ObserveLedgerOp("init", start, err)
	return n, err
}

// Decrement atomically claims one unit of stock.  Returns false when the
// slot is effectively full.  Any Redis error is returned to the caller,
// which must treat it as "not admitted".
func (c *Client) Decrement(ctx context.Context, slotID uint64) (bool, error) {
	start := time.Now()
	n, err := decrScript.Run(ctx, c.rdb, []string{stockKey(slotID)}).Int64()
	metrics.ObserveLedgerOp("decrement", start, err)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Increment returns one unit of stock, clamped so the counter never
// exceeds maxCapacity.  The reason tags the compensation path in logs.
func (c *Client) Increment(ctx context.Context, slotID uint64, maxCapacity int64, reason string) (int64, error) {
	start := time.Now()
	n, err := incrScript.Run(ctx, c.rdb, []string{stockKey(slotID)}, maxCapacity).Int64()
	metrics.ObserveLedgerOp("increment", start, err)
	if err != nil {
		return 0, err
	}
	log.Printf("ledger: slot=%d incremented to %d (%s)", slotID, n, reason)
	return n, nil
}

// SyncAll re-derives every counter from the durable capacity rows,
// overwriting whatever the cache held.  Run at process start and after
// any detected inconsistency.
func (c *Client) SyncAll(ctx context.Context, caps []model.SlotCapacity) error {
	for _, cap := range caps {
		if _, err := c.Init(ctx, cap.SlotID, cap.MaxCapacity, cap.CurrentCount); err != nil {
			return fmt.Errorf("ledger sync slot %d: %w", cap.SlotID, err)
		}
	}
	log.Printf("ledger: synchronized %d slot counters", len(caps))
	return nil
}

// Remaining reads the current counter value.  Returns ok=false when the
// key is absent.  Availability browsing uses this for a cheap read and
// falls back to the durable row on a miss.
func (c *Client) Remaining(ctx context.Context, slotID uint64) (int64, bool, error) {
	n, err := c.rdb.Get(ctx, stockKey(slotID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
