package store

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-reservation/internal/clock"
    "github.com/iliyamo/ticket-reservation/internal/model"
)

// getAndDelete atomically reads a key's value and removes it, returning
// the value or false.  Release uses it so two concurrent releases of the
// same record credit the ledger exactly once.
var getAndDelete = redis.NewScript(`
    local v = redis.call('GET', KEYS[1])
    if v then
        redis.call('DEL', KEYS[1])
    end
    return v
`)

// ReservationStore keeps the TTL'd hold records of the reservation tier.
// A record is a single JSON value written with the hold duration as its
// expiry, so cache-native TTL handles the common abandonment case.  The
// write is an upsert: a second reservation by the same holder for the
// same ticket type replaces the record and refreshes its window instead
// of double-reserving.
type ReservationStore struct {
    rdb  *redis.Client
    keys KeyScheme
    clk  clock.Clock
}

// NewReservationStore returns a store bound to the given Redis client,
// key scheme and clock.
func NewReservationStore(rdb *redis.Client, keys KeyScheme, clk clock.Clock) (*ReservationStore, error) {
    if rdb == nil {
        return nil, fmt.Errorf("reservation store: %w: redis client", model.ErrConfiguration)
    }
    if clk == nil {
        clk = clock.NewSystem()
    }
    return &ReservationStore{rdb: rdb, keys: keys, clk: clk}, nil
}

// CreateOrReplace upserts the hold record for (ticketID, holderID) with a
// fresh expiry and returns the stored record.  Any previous record for
// the pair is overwritten, not accumulated.
func (s *ReservationStore) CreateOrReplace(ctx context.Context, ticketID uint64, holderID string, qty int64, seats []model.Seat, ttl time.Duration) (model.ReservationRecord, error) {
    now := s.clk.Now()
    rec := model.ReservationRecord{
        TicketID:   ticketID,
        HolderID:   holderID,
        Quantity:   qty,
        Seats:      seats,
        ReservedAt: now,
        ExpiresAt:  now.Add(ttl),
    }
    body, err := json.Marshal(rec)
    if err != nil {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: marshal record: %w", err)
    }
    key := s.keys.Reservation(ticketID, holderID)
    if err := s.rdb.Set(ctx, key, body, ttl).Err(); err != nil {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: write %s: %w", key, err)
    }
    return rec, nil
}

// Get returns the hold record for the pair, or ErrReservationNotFound
// when it is missing or has lapsed via TTL.
func (s *ReservationStore) Get(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error) {
    key := s.keys.Reservation(ticketID, holderID)
    body, err := s.rdb.Get(ctx, key).Bytes()
    if err == redis.Nil {
        return model.ReservationRecord{}, model.ErrReservationNotFound
    }
    if err != nil {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: read %s: %w", key, err)
    }
    var rec model.ReservationRecord
    if err := json.Unmarshal(body, &rec); err != nil {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: decode %s: %w", key, err)
    }
    return rec, nil
}

// Validate reports whether a non-expired hold exists for the pair.  Used
// before allowing a holder to proceed to checkout confirmation.
func (s *ReservationStore) Validate(ctx context.Context, ticketID uint64, holderID string) (bool, error) {
    rec, err := s.Get(ctx, ticketID, holderID)
    if err == model.ErrReservationNotFound {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return !rec.Expired(s.clk.Now()), nil
}

// Release atomically deletes the record and returns it so the caller can
// feed its quantity back into the inventory ledger.  A missing record
// yields ErrReservationNotFound; the atomic read-and-delete guarantees at
// most one caller observes the record, so the ledger is credited exactly
// once per hold.
func (s *ReservationStore) Release(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error) {
    key := s.keys.Reservation(ticketID, holderID)
    v, err := getAndDelete.Run(ctx, s.rdb, []string{key}).Result()
    if err == redis.Nil || v == nil {
        return model.ReservationRecord{}, model.ErrReservationNotFound
    }
    if err != nil {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: release %s: %w", key, err)
    }
    raw, ok := v.(string)
    if !ok {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: unexpected value type %T for %s", v, key)
    }
    var rec model.ReservationRecord
    if err := json.Unmarshal([]byte(raw), &rec); err != nil {
        return model.ReservationRecord{}, fmt.Errorf("reservation store: decode %s: %w", key, err)
    }
    return rec, nil
}
