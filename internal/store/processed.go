package store

import (
    "context"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// processedTTL bounds how long a correlation id is remembered.  Brokers
// redeliver within seconds or minutes; a week leaves ample margin without
// growing the keyspace forever.
const processedTTL = 7 * 24 * time.Hour

// ProcessedSet records correlation ids of messages whose side effects
// have been applied, making the consumers idempotent under at-least-once
// delivery.  MarkProcessed is a single SETNX, so exactly one delivery of
// a given id wins.
type ProcessedSet struct {
    rdb  *redis.Client
    keys KeyScheme
}

// NewProcessedSet returns a set bound to the given Redis client and key
// scheme.
func NewProcessedSet(rdb *redis.Client, keys KeyScheme) (*ProcessedSet, error) {
    if rdb == nil {
        return nil, fmt.Errorf("processed set: %w: redis client", model.ErrConfiguration)
    }
    return &ProcessedSet{rdb: rdb, keys: keys}, nil
}

// MarkProcessed claims a correlation id.  It returns true when this call
// was the first to claim it; false means the message was already handled
// and the consumer must skip its side effects.
func (p *ProcessedSet) MarkProcessed(ctx context.Context, correlationID string) (bool, error) {
    ok, err := p.rdb.SetNX(ctx, p.keys.Processed(correlationID), 1, processedTTL).Result()
    if err != nil {
        return false, fmt.Errorf("processed set: mark %s: %w", correlationID, err)
    }
    return ok, nil
}

// Unmark releases a claim after a failed attempt so a redelivery can try
// again.  Best effort: an error here only delays the retry.
func (p *ProcessedSet) Unmark(ctx context.Context, correlationID string) error {
    return p.rdb.Del(ctx, p.keys.Processed(correlationID)).Err()
}
