package store

import (
    "context"
    "fmt"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// InventoryLedger maintains the authoritative remaining-quantity counter
// for each ticket type.  Redis offers atomic add/subtract but no
// conditional compare-and-decrement, so Reserve subtracts first, inspects
// the returned value and compensates with an add when the counter went
// negative.  The transient negative value is never observed by another
// operation as available stock: any concurrent Reserve seeing a negative
// result loses and compensates as well.
type InventoryLedger struct {
    rdb  *redis.Client
    keys KeyScheme
}

// NewInventoryLedger returns a ledger bound to the given Redis client and
// key scheme.
func NewInventoryLedger(rdb *redis.Client, keys KeyScheme) (*InventoryLedger, error) {
    if rdb == nil {
        return nil, fmt.Errorf("inventory ledger: %w: redis client", model.ErrConfiguration)
    }
    return &InventoryLedger{rdb: rdb, keys: keys}, nil
}

// Seed initializes the counter for a ticket type from the durable view.
// It writes only when no counter exists yet, so a live counter that
// already carries in-flight holds is never clobbered.  It reports whether
// the seed was applied.
func (l *InventoryLedger) Seed(ctx context.Context, ticketID uint64, total int64) (bool, error) {
    return l.rdb.SetNX(ctx, l.keys.Remaining(ticketID), total, 0).Result()
}

// Reserve atomically subtracts qty from the counter and returns the
// post-subtraction value.  When the result is negative the stock was
// insufficient: the decrement is compensated with an atomic add and
// model.ErrOversold is returned.  Oversell is a business outcome, not a
// transient fault, and must not be retried.
func (l *InventoryLedger) Reserve(ctx context.Context, ticketID uint64, qty int64) (int64, error) {
    if qty <= 0 {
        return 0, model.ErrInvalidQuantity
    }
    key := l.keys.Remaining(ticketID)
    remaining, err := l.rdb.DecrBy(ctx, key, qty).Result()
    if err != nil {
        return 0, fmt.Errorf("ledger: decrement %s: %w", key, err)
    }
    if remaining < 0 {
        // Give the quantity back before reporting the oversell.  A failed
        // compensation leaks stock, so the caller's retry policy applies.
        if _, compErr := l.rdb.IncrBy(ctx, key, qty).Result(); compErr != nil {
            return 0, fmt.Errorf("ledger: compensate %s after oversell: %w", key, compErr)
        }
        return remaining + qty, fmt.Errorf("ticket %d: %w", ticketID, model.ErrOversold)
    }
    return remaining, nil
}

// Release atomically adds qty back to the counter.  Idempotency is the
// caller's responsibility: releasing twice for one reservation inflates
// stock.
func (l *InventoryLedger) Release(ctx context.Context, ticketID uint64, qty int64) (int64, error) {
    if qty <= 0 {
        return 0, model.ErrInvalidQuantity
    }
    key := l.keys.Remaining(ticketID)
    remaining, err := l.rdb.IncrBy(ctx, key, qty).Result()
    if err != nil {
        return 0, fmt.Errorf("ledger: release %s: %w", key, err)
    }
    return remaining, nil
}

// Peek returns the current counter value for display purposes.  It must
// never gate a reservation decision: a check on a separate read followed
// by a decrement is a race.  A missing counter reads as zero.
func (l *InventoryLedger) Peek(ctx context.Context, ticketID uint64) (int64, error) {
    v, err := l.rdb.Get(ctx, l.keys.Remaining(ticketID)).Int64()
    if err == redis.Nil {
        return 0, nil
    }
    if err != nil {
        return 0, fmt.Errorf("ledger: peek ticket %d: %w", ticketID, err)
    }
    return v, nil
}
