package store

import (
    "context"
    "encoding/json"
    "fmt"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// Deadline is one entry of the expiry index.  It carries everything the
// sweeper needs to compensate a lapsed hold, because by the time the
// sweeper runs the TTL'd reservation record is usually already gone.
type Deadline struct {
    TicketID uint64       `json:"ticket_id"`
    HolderID string       `json:"holder_id"`
    Quantity int64        `json:"quantity"`
    Seats    []model.Seat `json:"seats,omitempty"`
}

// member is the sorted-set member for this deadline.  It identifies the
// (ticket, holder) pair only, so a replaced reservation overwrites its
// old entry and removal is a single ZREM instead of a scan.
func (d Deadline) member() string {
    return pairMember(d.TicketID, d.HolderID)
}

func pairMember(ticketID uint64, holderID string) string {
    return strconv.FormatUint(ticketID, 10) + ":" + holderID
}

// DeadlineIndex is a sorted set scoring each active hold by its expiry
// instant, with the hold's payload kept in a companion hash under the
// same member.  Cache-native TTL silently frees the reservation record
// and seat locks but cannot credit the ledger back, so every reservation
// adds a deadline here and every confirm or explicit release removes it;
// the expiry sweeper pops due entries and issues the compensating
// release.  The index survives process restarts because it lives in
// Redis.
type DeadlineIndex struct {
    rdb  *redis.Client
    keys KeyScheme
}

// NewDeadlineIndex returns an index bound to the given Redis client and
// key scheme.
func NewDeadlineIndex(rdb *redis.Client, keys KeyScheme) (*DeadlineIndex, error) {
    if rdb == nil {
        return nil, fmt.Errorf("deadline index: %w: redis client", model.ErrConfiguration)
    }
    return &DeadlineIndex{rdb: rdb, keys: keys}, nil
}

// Add records a hold's expiry instant.  Re-adding the same (ticket,
// holder) pair (a replaced reservation) updates both score and payload.
func (i *DeadlineIndex) Add(ctx context.Context, d Deadline, expiresAt time.Time) error {
    payload, err := json.Marshal(d)
    if err != nil {
        return fmt.Errorf("deadline index: marshal payload: %w", err)
    }
    m := d.member()
    _, err = i.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
        pipe.ZAdd(ctx, i.keys.Deadlines(), redis.Z{
            Score:  float64(expiresAt.UTC().Unix()),
            Member: m,
        })
        pipe.HSet(ctx, i.keys.DeadlineData(), m, payload)
        return nil
    })
    if err != nil {
        return fmt.Errorf("deadline index: add: %w", err)
    }
    return nil
}

// Remove drops the deadline for a resolved hold (confirmed or released).
func (i *DeadlineIndex) Remove(ctx context.Context, d Deadline) error {
    return i.RemoveFor(ctx, d.TicketID, d.HolderID)
}

// RemoveFor drops the deadline entry for the (ticket, holder) pair.  The
// member is derived from the pair, so this is a single ZREM regardless
// of the quantity the entry carried.
func (i *DeadlineIndex) RemoveFor(ctx context.Context, ticketID uint64, holderID string) error {
    m := pairMember(ticketID, holderID)
    _, err := i.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
        pipe.ZRem(ctx, i.keys.Deadlines(), m)
        pipe.HDel(ctx, i.keys.DeadlineData(), m)
        return nil
    })
    if err != nil {
        return fmt.Errorf("deadline index: remove: %w", err)
    }
    return nil
}

// PopDue removes and returns all entries whose expiry is at or before
// now.  Removal happens before the caller compensates; a crash between
// the two loses at most one sweep's worth of compensation, which the
// operator can replay from the reservation log.
func (i *DeadlineIndex) PopDue(ctx context.Context, now time.Time) ([]Deadline, error) {
    max := strconv.FormatInt(now.UTC().Unix(), 10)
    members, err := i.rdb.ZRangeByScore(ctx, i.keys.Deadlines(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
    if err != nil {
        return nil, fmt.Errorf("deadline index: range due: %w", err)
    }
    if len(members) == 0 {
        return nil, nil
    }
    due := make([]Deadline, 0, len(members))
    for _, m := range members {
        removed, err := i.rdb.ZRem(ctx, i.keys.Deadlines(), m).Result()
        if err != nil {
            return due, fmt.Errorf("deadline index: pop: %w", err)
        }
        if removed == 0 {
            // Another sweeper instance claimed this entry first.
            continue
        }
        payload, err := i.rdb.HGet(ctx, i.keys.DeadlineData(), m).Result()
        if err != nil {
            if err == redis.Nil {
                // The payload was already deleted by a concurrent
                // RemoveFor; nothing left to compensate.
                continue
            }
            return due, fmt.Errorf("deadline index: payload for %q: %w", m, err)
        }
        if err := i.rdb.HDel(ctx, i.keys.DeadlineData(), m).Err(); err != nil {
            return due, fmt.Errorf("deadline index: drop payload for %q: %w", m, err)
        }
        var d Deadline
        if err := json.Unmarshal([]byte(payload), &d); err != nil {
            return due, fmt.Errorf("deadline index: decode payload for %q: %w", m, err)
        }
        due = append(due, d)
    }
    return due, nil
}
