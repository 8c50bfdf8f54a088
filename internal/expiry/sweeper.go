// Package expiry closes the gap between cache-native TTL expiry and the
// inventory ledger.  When a hold lapses, Redis silently drops the
// reservation record and seat locks but cannot credit the decremented
// counter back; without compensation that stock is lost forever.  The
// sweeper polls the deadline index and issues the compensating release
// for every hold that expired without being confirmed or released.
package expiry

import (
    "context"
    "errors"
    "log"
    "time"

    "github.com/iliyamo/ticket-reservation/internal/clock"
    "github.com/iliyamo/ticket-reservation/internal/model"
    "github.com/iliyamo/ticket-reservation/internal/store"
)

// Deadlines is the due-entry source, implemented by store.DeadlineIndex.
type Deadlines interface {
    PopDue(ctx context.Context, now time.Time) ([]store.Deadline, error)
    Add(ctx context.Context, d store.Deadline, expiresAt time.Time) error
}

// Records lets the sweeper double-check whether a hold still exists
// before compensating.
type Records interface {
    Get(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error)
}

// Ledger receives the compensating credit.
type Ledger interface {
    Release(ctx context.Context, ticketID uint64, qty int64) (int64, error)
}

// SeatLocks frees any seat state the TTL may not have reaped yet.
type SeatLocks interface {
    ReleaseSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error
}

// Sweeper periodically reconciles expired holds.
type Sweeper struct {
    deadlines Deadlines
    records   Records
    ledger    Ledger
    seats     SeatLocks
    clk       clock.Clock
    interval  time.Duration
}

// New builds a sweeper polling at the given interval.
func New(deadlines Deadlines, records Records, ledger Ledger, seats SeatLocks, clk clock.Clock, interval time.Duration) *Sweeper {
    if clk == nil {
        clk = clock.NewSystem()
    }
    if interval <= 0 {
        interval = 30 * time.Second
    }
    return &Sweeper{
        deadlines: deadlines,
        records:   records,
        ledger:    ledger,
        seats:     seats,
        clk:       clk,
        interval:  interval,
    }
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if err := s.Sweep(ctx); err != nil {
                log.Printf("expiry-sweeper: sweep failed: %v", err)
            }
        }
    }
}

// Sweep performs one reconciliation pass.  For each due deadline: when
// the reservation record is still live the hold was replaced with a later
// expiry, so the deadline is re-armed; when the record is gone the hold
// lapsed unconfirmed and the ledger is credited back and any surviving
// seat state freed.
func (s *Sweeper) Sweep(ctx context.Context) error {
    now := s.clk.Now()
    due, err := s.deadlines.PopDue(ctx, now)
    if err != nil {
        return err
    }
    for _, d := range due {
        rec, err := s.records.Get(ctx, d.TicketID, d.HolderID)
        if err == nil {
            if rec.Expired(now) {
                // Record lingers past its expiry (clock skew); treat as
                // lapsed below.
            } else {
                // A newer hold replaced this one; track its real expiry.
                if err := s.deadlines.Add(ctx, d, rec.ExpiresAt); err != nil {
                    log.Printf("expiry-sweeper: re-arm ticket %d holder %s: %v", d.TicketID, d.HolderID, err)
                }
                continue
            }
        } else if !errors.Is(err, model.ErrReservationNotFound) {
            // Transient read failure: re-arm shortly rather than guessing.
            if addErr := s.deadlines.Add(ctx, d, now.Add(s.interval)); addErr != nil {
                log.Printf("expiry-sweeper: re-arm after read failure ticket %d holder %s: %v", d.TicketID, d.HolderID, addErr)
            }
            continue
        }

        if _, err := s.ledger.Release(ctx, d.TicketID, d.Quantity); err != nil {
            // The deadline entry is already popped; losing this credit
            // leaks stock, so put the entry back for the next pass.
            log.Printf("expiry-sweeper: ledger release ticket %d qty %d: %v", d.TicketID, d.Quantity, err)
            if addErr := s.deadlines.Add(ctx, d, now.Add(s.interval)); addErr != nil {
                log.Printf("expiry-sweeper: STOCK LEAK: ticket %d qty %d holder %s: %v", d.TicketID, d.Quantity, d.HolderID, addErr)
            }
            continue
        }
        for _, seat := range d.Seats {
            if err := s.seats.ReleaseSeat(ctx, d.TicketID, seat, d.HolderID); err != nil {
                log.Printf("expiry-sweeper: release seat %s ticket %d: %v", seat.Label(), d.TicketID, err)
            }
        }
        log.Printf("expiry-sweeper: expired hold reconciled: ticket=%d holder=%s qty=%d", d.TicketID, d.HolderID, d.Quantity)
    }
    return nil
}
