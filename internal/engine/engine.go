// Package engine orchestrates the reservation workflow over the cache
// tier stores and the broker.  The per-key store operations are atomic
// but not transactional across keys, so a multi-item reservation is a
// compensating saga: the first oversell or seat conflict rolls back every
// quantity and seat taken so far in the same request.
package engine

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/iliyamo/ticket-reservation/internal/clock"
    "github.com/iliyamo/ticket-reservation/internal/model"
    "github.com/iliyamo/ticket-reservation/internal/queue"
    "github.com/iliyamo/ticket-reservation/internal/store"
)

// Ledger is the atomic remaining-quantity counter per ticket type.
type Ledger interface {
    Reserve(ctx context.Context, ticketID uint64, qty int64) (int64, error)
    Release(ctx context.Context, ticketID uint64, qty int64) (int64, error)
    Peek(ctx context.Context, ticketID uint64) (int64, error)
}

// SeatLocks grants and releases per-seat exclusive holds.
type SeatLocks interface {
    AcquireSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string, ttl time.Duration) error
    ReleaseSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error
}

// Records stores the TTL'd provisional hold per (ticket, holder) pair.
type Records interface {
    CreateOrReplace(ctx context.Context, ticketID uint64, holderID string, qty int64, seats []model.Seat, ttl time.Duration) (model.ReservationRecord, error)
    Get(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error)
    Validate(ctx context.Context, ticketID uint64, holderID string) (bool, error)
    Release(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error)
}

// Deadlines feeds the expiry sweeper that compensates holds which lapse
// via cache TTL without an explicit release.
type Deadlines interface {
    Add(ctx context.Context, d store.Deadline, expiresAt time.Time) error
    Remove(ctx context.Context, d store.Deadline) error
    RemoveFor(ctx context.Context, ticketID uint64, holderID string) error
}

// Publisher emits reservation intents onto the broker.
type Publisher interface {
    Publish(ctx context.Context, m queue.Message) error
}

// Options tune the engine's hold window and compensation retry policy.
type Options struct {
    HoldTTL         time.Duration // lifetime of a provisional hold
    MaxPerOrder     int64         // maximum quantity per item per order
    CompensateTries int           // attempts for a compensating release
    CompensateDelay time.Duration // pause between compensation attempts
}

func (o *Options) fill() {
    if o.HoldTTL <= 0 {
        o.HoldTTL = 15 * time.Minute
    }
    if o.MaxPerOrder <= 0 {
        o.MaxPerOrder = 10
    }
    if o.CompensateTries <= 0 {
        o.CompensateTries = 3
    }
    if o.CompensateDelay <= 0 {
        o.CompensateDelay = 200 * time.Millisecond
    }
}

// Engine executes reservation, release and confirmation-validation
// operations.  It holds no in-process locks across I/O: per-item safety
// comes from the atomicity of the store primitives.
type Engine struct {
    ledger    Ledger
    seats     SeatLocks
    records   Records
    deadlines Deadlines
    publisher Publisher
    clk       clock.Clock
    opts      Options
}

// New wires an engine from its stores.  All dependencies except the
// clock are required; a nil store is a configuration error.
func New(ledger Ledger, seats SeatLocks, records Records, deadlines Deadlines, publisher Publisher, clk clock.Clock, opts Options) (*Engine, error) {
    if ledger == nil || seats == nil || records == nil || deadlines == nil || publisher == nil {
        return nil, fmt.Errorf("engine: %w: nil store or publisher", model.ErrConfiguration)
    }
    if clk == nil {
        clk = clock.NewSystem()
    }
    opts.fill()
    return &Engine{
        ledger:    ledger,
        seats:     seats,
        records:   records,
        deadlines: deadlines,
        publisher: publisher,
        clk:       clk,
        opts:      opts,
    }, nil
}

// ReserveResult describes a successful multi-item reservation.
type ReserveResult struct {
    CorrelationID string
    ExpiresAt     time.Time
    Records       []model.ReservationRecord
}

// Reserve attempts to hold every requested item for the holder.  Items
// are processed sequentially: ledger decrement, then seat locks for
// seated items.  The first oversell or seat conflict aborts the request
// and compensates everything taken so far; the business error of the
// failing item is surfaced to the caller.  On full success one record per
// ticket type is written with the shared TTL, deadlines are indexed for
// the expiry sweeper, and a single reservation.created message covering
// the whole request is published.
//
// A repeat request for a ticket type the holder already holds drops the
// existing hold before taking the new quantities, so a failed
// replacement leaves the holder with no hold on that ticket type rather
// than the previous one.
func (e *Engine) Reserve(ctx context.Context, holderID string, items []model.ReservationItem) (ReserveResult, error) {
    if holderID == "" {
        return ReserveResult{}, fmt.Errorf("engine: %w: empty holder id", model.ErrInvalidQuantity)
    }
    if err := e.validateItems(items); err != nil {
        return ReserveResult{}, err
    }

    // Replace-not-add: drop any live hold the holder already has on the
    // requested ticket types, crediting the ledger back, before taking
    // the new quantities.
    for _, it := range items {
        if err := e.releaseExisting(ctx, it.TicketID, holderID); err != nil {
            return ReserveResult{}, err
        }
    }

    type taken struct {
        item  model.ReservationItem
        seats []model.Seat // seats actually acquired for this item
    }
    var done []taken

    rollback := func() {
        for _, t := range done {
            e.compensate(ctx, t.item.TicketID, holderID, t.item.Quantity, t.seats)
        }
    }

    for _, it := range items {
        if _, err := e.ledger.Reserve(ctx, it.TicketID, it.Quantity); err != nil {
            rollback()
            return ReserveResult{}, err
        }
        var acquired []model.Seat
        for _, seat := range it.Seats {
            if err := e.seats.AcquireSeat(ctx, it.TicketID, seat, holderID, e.opts.HoldTTL); err != nil {
                // Undo this item's decrement and partial seats, then
                // everything taken for earlier items.
                e.compensate(ctx, it.TicketID, holderID, it.Quantity, acquired)
                rollback()
                return ReserveResult{}, err
            }
            acquired = append(acquired, seat)
        }
        done = append(done, taken{item: it, seats: acquired})
    }

    res := ReserveResult{CorrelationID: newCorrelationID()}
    for _, t := range done {
        rec, err := e.records.CreateOrReplace(ctx, t.item.TicketID, holderID, t.item.Quantity, t.seats, e.opts.HoldTTL)
        if err != nil {
            // Records written for earlier items must go too: their stock
            // is about to be credited back, and a surviving record would
            // be a confirmable hold backed by nothing.
            e.discardRecords(ctx, holderID, res.Records)
            rollback()
            return ReserveResult{}, err
        }
        res.Records = append(res.Records, rec)
        res.ExpiresAt = rec.ExpiresAt
        d := store.Deadline{TicketID: t.item.TicketID, HolderID: holderID, Quantity: t.item.Quantity, Seats: t.seats}
        if err := e.deadlines.Add(ctx, d, rec.ExpiresAt); err != nil {
            // The hold stands; the sweeper just cannot see it.  Log and
            // continue so the customer is not bounced for bookkeeping.
            log.Printf("engine: deadline index add failed for ticket %d holder %s: %v", t.item.TicketID, holderID, err)
        }
    }

    msg := queue.Message{
        Kind:          queue.KindReservationCreated,
        CorrelationID: res.CorrelationID,
        HolderID:      holderID,
        Items:         items,
        Timestamp:     e.clk.Now(),
    }
    if err := e.publisher.Publish(ctx, msg); err != nil {
        // Publishing is asynchronous bookkeeping; the provisional hold is
        // already in place and will expire on its own if never confirmed.
        log.Printf("engine: publish %s failed for holder %s: %v", msg.Kind, holderID, err)
    }
    return res, nil
}

// Release explicitly drops the holder's live holds for the given ticket
// types, crediting quantities back to the ledger and unlocking seats.
// Missing holds are skipped, which makes the operation safe to repeat;
// the ledger is credited at most once per hold because the record delete
// is atomic.  When at least one hold was freed a reservation.cancelled
// event covering the freed items is published so downstream bookkeeping
// observes the release.  It returns the number of holds actually
// released.
func (e *Engine) Release(ctx context.Context, holderID string, ticketIDs []uint64) (int, error) {
    if holderID == "" {
        return 0, fmt.Errorf("engine: %w: empty holder id", model.ErrInvalidQuantity)
    }
    var freed []model.ReservationItem
    var firstErr error
    for _, id := range ticketIDs {
        rec, err := e.records.Release(ctx, id, holderID)
        if errors.Is(err, model.ErrReservationNotFound) {
            continue
        }
        if err != nil {
            if firstErr == nil {
                firstErr = err
            }
            continue
        }
        e.compensate(ctx, id, holderID, rec.Quantity, rec.Seats)
        if err := e.deadlines.RemoveFor(ctx, id, holderID); err != nil {
            log.Printf("engine: deadline remove failed for ticket %d holder %s: %v", id, holderID, err)
        }
        freed = append(freed, model.ReservationItem{TicketID: id, Quantity: rec.Quantity, Seats: rec.Seats})
    }
    if len(freed) > 0 {
        msg := queue.Message{
            Kind:          queue.KindReservationCancelled,
            CorrelationID: newCorrelationID(),
            HolderID:      holderID,
            Items:         freed,
            Timestamp:     e.clk.Now(),
        }
        if err := e.publisher.Publish(ctx, msg); err != nil {
            // The holds are already gone; the event is bookkeeping.
            log.Printf("engine: publish %s failed for holder %s: %v", msg.Kind, holderID, err)
        }
    }
    return len(freed), firstErr
}

// Validate reports whether the holder still owns a live hold on every
// given ticket type.  Used before allowing checkout confirmation.
func (e *Engine) Validate(ctx context.Context, holderID string, ticketIDs []uint64) (bool, error) {
    for _, id := range ticketIDs {
        ok, err := e.records.Validate(ctx, id, holderID)
        if err != nil {
            return false, err
        }
        if !ok {
            return false, nil
        }
    }
    return true, nil
}

// Availability returns the display-only remaining count for a ticket
// type.  It must not gate reservations.
func (e *Engine) Availability(ctx context.Context, ticketID uint64) (int64, error) {
    return e.ledger.Peek(ctx, ticketID)
}

// PublishIntent emits a cancellation or confirmation intent for the
// holder's items.  The heavy lifting happens in the consumers; this
// merely validates and enqueues.
func (e *Engine) PublishIntent(ctx context.Context, kind queue.Kind, holderID string, items []model.ReservationItem) (string, error) {
    msg := queue.Message{
        Kind:          kind,
        CorrelationID: newCorrelationID(),
        HolderID:      holderID,
        Items:         items,
        Timestamp:     e.clk.Now(),
    }
    if err := e.publisher.Publish(ctx, msg); err != nil {
        return "", err
    }
    return msg.CorrelationID, nil
}

func (e *Engine) validateItems(items []model.ReservationItem) error {
    if len(items) == 0 {
        return fmt.Errorf("engine: %w: no items", model.ErrInvalidQuantity)
    }
    seen := make(map[uint64]struct{}, len(items))
    for _, it := range items {
        if it.TicketID == 0 {
            return fmt.Errorf("engine: %w: missing ticket id", model.ErrInvalidQuantity)
        }
        if _, dup := seen[it.TicketID]; dup {
            return fmt.Errorf("engine: %w: duplicate ticket %d", model.ErrInvalidQuantity, it.TicketID)
        }
        seen[it.TicketID] = struct{}{}
        if it.Quantity <= 0 || it.Quantity > e.opts.MaxPerOrder {
            return fmt.Errorf("engine: ticket %d: %w", it.TicketID, model.ErrInvalidQuantity)
        }
        if len(it.Seats) > 0 && int64(len(it.Seats)) != it.Quantity {
            return fmt.Errorf("engine: ticket %d: %w: seat count does not match quantity", it.TicketID, model.ErrInvalidQuantity)
        }
    }
    return nil
}

// discardRecords deletes hold records written before a reservation was
// aborted, together with their deadline entries.  The atomic record
// delete also keeps the sweeper from crediting the same stock a second
// time after the abort's own compensation.
func (e *Engine) discardRecords(ctx context.Context, holderID string, recs []model.ReservationRecord) {
    for _, rec := range recs {
        if _, err := e.records.Release(ctx, rec.TicketID, holderID); err != nil && !errors.Is(err, model.ErrReservationNotFound) {
            log.Printf("engine: drop record ticket %d holder %s after abort: %v", rec.TicketID, holderID, err)
        }
        if err := e.deadlines.RemoveFor(ctx, rec.TicketID, holderID); err != nil {
            log.Printf("engine: deadline remove failed for ticket %d holder %s: %v", rec.TicketID, holderID, err)
        }
    }
}

// releaseExisting clears a previous live hold for the pair so a repeat
// reservation replaces instead of accumulating.
func (e *Engine) releaseExisting(ctx context.Context, ticketID uint64, holderID string) error {
    rec, err := e.records.Release(ctx, ticketID, holderID)
    if errors.Is(err, model.ErrReservationNotFound) {
        return nil
    }
    if err != nil {
        return err
    }
    e.compensate(ctx, ticketID, holderID, rec.Quantity, rec.Seats)
    if err := e.deadlines.RemoveFor(ctx, ticketID, holderID); err != nil {
        log.Printf("engine: deadline remove failed for ticket %d holder %s: %v", ticketID, holderID, err)
    }
    return nil
}

// compensate returns qty to the ledger and frees the given seats,
// retrying each step with the configured bounded policy.  A compensation
// that still fails after retries leaks stock permanently, so it is
// logged loudly for manual reconciliation.
func (e *Engine) compensate(ctx context.Context, ticketID uint64, holderID string, qty int64, seats []model.Seat) {
    if qty > 0 {
        err := e.retry(func() error {
            _, err := e.ledger.Release(ctx, ticketID, qty)
            return err
        })
        if err != nil {
            log.Printf("engine: COMPENSATION FAILED: ticket %d qty %d holder %s: %v", ticketID, qty, holderID, err)
        }
    }
    for _, seat := range seats {
        s := seat
        err := e.retry(func() error {
            return e.seats.ReleaseSeat(ctx, ticketID, s, holderID)
        })
        if err != nil {
            log.Printf("engine: COMPENSATION FAILED: ticket %d seat %s holder %s: %v", ticketID, s.Label(), holderID, err)
        }
    }
}

func (e *Engine) retry(fn func() error) error {
    var err error
    for attempt := 0; attempt < e.opts.CompensateTries; attempt++ {
        if err = fn(); err == nil {
            return nil
        }
        if attempt < e.opts.CompensateTries-1 {
            time.Sleep(e.opts.CompensateDelay)
        }
    }
    return err
}

// newCorrelationID returns a random 32-character hex id used to
// deduplicate messages across at-least-once deliveries.
func newCorrelationID() string {
    b := make([]byte, 16)
    if _, err := rand.Read(b); err != nil {
        // crypto/rand failing means the process is in serious trouble;
        // fall back to a timestamp so the id is at least unique-ish.
        return hex.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
    }
    return hex.EncodeToString(b)
}
