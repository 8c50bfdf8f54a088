package store

import (
    "context"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// releaseIfOwner deletes a lock key only when its value matches the
// holder, so stale state can never release someone else's lock.  Returns
// 1 when the key was deleted, 0 otherwise.
var releaseIfOwner = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// SeatLockManager grants per-seat exclusive holds for seated ticket
// types.  Acquisition is a single SETNX with TTL, so at most one holder
// owns a seat at any instant; the TTL equals the reservation hold
// duration and frees abandoned seats without a background sweep.
type SeatLockManager struct {
    rdb  *redis.Client
    keys KeyScheme
}

// NewSeatLockManager returns a manager bound to the given Redis client
// and key scheme.
func NewSeatLockManager(rdb *redis.Client, keys KeyScheme) (*SeatLockManager, error) {
    if rdb == nil {
        return nil, fmt.Errorf("seat lock manager: %w: redis client", model.ErrConfiguration)
    }
    return &SeatLockManager{rdb: rdb, keys: keys}, nil
}

// AcquireSeat takes an exclusive hold on a seat for the holder.  When the
// seat is already locked by the same holder (a retry) the call succeeds
// and refreshes the TTL; a different holder yields model.ErrSeatConflict.
// A reserved-seat marker is written alongside the lock with the same TTL
// so availability views can show the seat as taken.
func (m *SeatLockManager) AcquireSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string, ttl time.Duration) error {
    key := m.keys.SeatLock(ticketID, seat)
    ok, err := m.rdb.SetNX(ctx, key, holderID, ttl).Result()
    if err != nil {
        return fmt.Errorf("seat lock: acquire %s: %w", key, err)
    }
    if !ok {
        owner, err := m.rdb.Get(ctx, key).Result()
        if err != nil && err != redis.Nil {
            return fmt.Errorf("seat lock: read owner of %s: %w", key, err)
        }
        if owner != holderID {
            return fmt.Errorf("seat %s of ticket %d: %w", seat.Label(), ticketID, model.ErrSeatConflict)
        }
        // Same holder retrying: refresh the hold window.
        if err := m.rdb.Expire(ctx, key, ttl).Err(); err != nil {
            return fmt.Errorf("seat lock: refresh %s: %w", key, err)
        }
    }
    if err := m.rdb.Set(ctx, m.keys.ReservedSeat(ticketID, seat), holderID, ttl).Err(); err != nil {
        return fmt.Errorf("seat lock: mark reserved %s: %w", key, err)
    }
    return nil
}

// ReleaseSeat removes the lock and the reserved marker, but only when the
// lock is currently held by holderID.  Releasing a seat that already
// expired or was never held is a no-op.
func (m *SeatLockManager) ReleaseSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error {
    key := m.keys.SeatLock(ticketID, seat)
    if err := releaseIfOwner.Run(ctx, m.rdb, []string{key}, holderID).Err(); err != nil {
        return fmt.Errorf("seat lock: release %s: %w", key, err)
    }
    if err := releaseIfOwner.Run(ctx, m.rdb, []string{m.keys.ReservedSeat(ticketID, seat)}, holderID).Err(); err != nil {
        return fmt.Errorf("seat lock: clear reserved marker for %s: %w", key, err)
    }
    return nil
}

// MarkBooked writes the permanent booked marker for a confirmed seat and
// drops the provisional lock and reserved marker.  Called by the confirm
// consumer once the order is durable.
func (m *SeatLockManager) MarkBooked(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error {
    if err := m.rdb.Set(ctx, m.keys.BookedSeat(ticketID, seat), holderID, 0).Err(); err != nil {
        return fmt.Errorf("seat lock: mark booked %s: %w", seat.Label(), err)
    }
    return m.ReleaseSeat(ctx, ticketID, seat, holderID)
}
