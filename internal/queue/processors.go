package queue

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/iliyamo/ticket-reservation/internal/clock"
    "github.com/iliyamo/ticket-reservation/internal/model"
    "github.com/iliyamo/ticket-reservation/internal/payment"
)

// Idempotency deduplicates deliveries by correlation id.
type Idempotency interface {
    MarkProcessed(ctx context.Context, correlationID string) (bool, error)
    Unmark(ctx context.Context, correlationID string) error
}

// HoldReader exposes the reservation records a processor inspects and
// consumes.  Release here only removes the record; it does not credit
// the ledger, which is exactly what confirmation needs (the stock has
// been permanently consumed).
type HoldReader interface {
    Get(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error)
    Release(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error)
}

// HoldReleaser performs a full explicit release: record, ledger credit
// and seat locks.  Implemented by the engine.
type HoldReleaser interface {
    Release(ctx context.Context, holderID string, ticketIDs []uint64) (int, error)
}

// OrderWriter persists confirmed orders durably.
type OrderWriter interface {
    ExistsByCorrelationID(ctx context.Context, correlationID string) (bool, error)
    Create(ctx context.Context, order model.Order, items []model.OrderItem) (model.Order, error)
}

// TicketPricer reads unit prices from the durable store.
type TicketPricer interface {
    GetPrice(ctx context.Context, ticketID uint64) (uint32, error)
}

// SeatBooker converts provisional seat locks into permanent booked
// markers after confirmation.
type SeatBooker interface {
    MarkBooked(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error
}

// DeadlineRemover drops expiry-sweeper entries for resolved holds.
type DeadlineRemover interface {
    RemoveFor(ctx context.Context, ticketID uint64, holderID string) error
}

// Notifier is invoked fire-and-forget after an order is persisted.
type Notifier interface {
    OrderConfirmed(order model.Order, items []model.OrderItem)
}

// CreatedProcessor handles reservation.created messages.  The hold is
// already in place when the message is published; this consumer records
// an audit line so operations can trace every provisional claim, the
// raw material for reconciling dead-lettered confirmations.
type CreatedProcessor struct {
    Processed Idempotency
}

func (p *CreatedProcessor) Process(ctx context.Context, m Message) error {
    first, err := p.Processed.MarkProcessed(ctx, m.CorrelationID)
    if err != nil {
        return err
    }
    if !first {
        return nil
    }
    for _, it := range m.Items {
        log.Printf("reservation-created: correlation=%s holder=%s ticket=%d qty=%d seats=%d",
            m.CorrelationID, m.HolderID, it.TicketID, it.Quantity, len(it.Seats))
    }
    return nil
}

// CancelProcessor handles reservation.cancelled messages by running the
// full explicit release: delete records, credit the ledger, unlock
// seats.  Releasing an already-gone hold is a no-op, which makes
// redelivery harmless even without the idempotency marker; the marker
// still short-circuits the common duplicate.
type CancelProcessor struct {
    Processed Idempotency
    Releaser  HoldReleaser
}

func (p *CancelProcessor) Process(ctx context.Context, m Message) error {
    first, err := p.Processed.MarkProcessed(ctx, m.CorrelationID)
    if err != nil {
        return err
    }
    if !first {
        return nil
    }
    ids := make([]uint64, 0, len(m.Items))
    for _, it := range m.Items {
        ids = append(ids, it.TicketID)
    }
    if _, err := p.Releaser.Release(ctx, m.HolderID, ids); err != nil {
        // Let a redelivery finish the job.
        if unmarkErr := p.Processed.Unmark(ctx, m.CorrelationID); unmarkErr != nil {
            log.Printf("cancel-consumer: unmark %s failed: %v", m.CorrelationID, unmarkErr)
        }
        return err
    }
    return nil
}

// ConfirmProcessor handles reservation.confirmed messages: it turns a
// live provisional hold into a durable Order.  Stock stays decremented —
// confirmation consumes it permanently.  A missing or expired hold is a
// permanent failure (the hold lapsed); no order is created and the
// message is dead-lettered for reconciliation.
type ConfirmProcessor struct {
    Processed Idempotency
    Holds     HoldReader
    Orders    OrderWriter
    Tickets   TicketPricer
    Seats     SeatBooker
    Deadlines DeadlineRemover
    Payments  payment.Service
    Notify    Notifier
    Clock     clock.Clock
}

func (p *ConfirmProcessor) Process(ctx context.Context, m Message) error {
    first, err := p.Processed.MarkProcessed(ctx, m.CorrelationID)
    if err != nil {
        return err
    }
    if !first {
        return nil
    }
    // Durable backstop: the idempotency marker has a TTL, the order row
    // does not.
    if exists, err := p.Orders.ExistsByCorrelationID(ctx, m.CorrelationID); err != nil {
        return p.transient(ctx, m, err)
    } else if exists {
        return nil
    }

    now := time.Now().UTC()
    if p.Clock != nil {
        now = p.Clock.Now()
    }

    // Validate every hold before any durable write.
    records := make([]model.ReservationRecord, 0, len(m.Items))
    for _, it := range m.Items {
        rec, err := p.Holds.Get(ctx, it.TicketID, m.HolderID)
        if errors.Is(err, model.ErrReservationNotFound) {
            return Permanent(fmt.Errorf("ticket %d holder %s: %w", it.TicketID, m.HolderID, model.ErrReservationNotFound))
        }
        if err != nil {
            return p.transient(ctx, m, err)
        }
        if rec.Expired(now) {
            return Permanent(fmt.Errorf("ticket %d holder %s: %w", it.TicketID, m.HolderID, model.ErrReservationNotFound))
        }
        records = append(records, rec)
    }

    var total uint32
    items := make([]model.OrderItem, 0, len(records))
    for _, rec := range records {
        price, err := p.Tickets.GetPrice(ctx, rec.TicketID)
        if err != nil {
            return p.transient(ctx, m, err)
        }
        labels := make([]string, 0, len(rec.Seats))
        for _, s := range rec.Seats {
            labels = append(labels, s.Label())
        }
        items = append(items, model.OrderItem{
            TicketID:   rec.TicketID,
            Quantity:   rec.Quantity,
            PriceCents: price,
            SeatLabels: labels,
        })
        total += price * uint32(rec.Quantity)
    }

    var paymentRef *string
    if p.Payments != nil {
        intent, err := p.Payments.CreateIntent(ctx, total)
        if err != nil {
            return p.transient(ctx, m, err)
        }
        if intent.ID != "" {
            paymentRef = &intent.ID
        }
    }

    order := model.Order{
        HolderID:         m.HolderID,
        CorrelationID:    m.CorrelationID,
        TotalAmountCents: total,
        PaymentRef:       paymentRef,
    }
    created, err := p.Orders.Create(ctx, order, items)
    if err != nil {
        return p.transient(ctx, m, err)
    }

    // The order is durable; everything below is cleanup and best effort.
    for _, rec := range records {
        if _, err := p.Holds.Release(ctx, rec.TicketID, m.HolderID); err != nil && !errors.Is(err, model.ErrReservationNotFound) {
            log.Printf("confirm-consumer: drop record ticket %d holder %s: %v", rec.TicketID, m.HolderID, err)
        }
        if err := p.Deadlines.RemoveFor(ctx, rec.TicketID, m.HolderID); err != nil {
            log.Printf("confirm-consumer: drop deadline ticket %d holder %s: %v", rec.TicketID, m.HolderID, err)
        }
        for _, seat := range rec.Seats {
            if err := p.Seats.MarkBooked(ctx, rec.TicketID, seat, m.HolderID); err != nil {
                log.Printf("confirm-consumer: mark booked ticket %d seat %s: %v", rec.TicketID, seat.Label(), err)
            }
        }
    }
    if p.Notify != nil {
        p.Notify.OrderConfirmed(created, items)
    }
    return nil
}

// transient releases the idempotency claim so a retry or redelivery can
// reprocess, then reports the failure.
func (p *ConfirmProcessor) transient(ctx context.Context, m Message, err error) error {
    if unmarkErr := p.Processed.Unmark(ctx, m.CorrelationID); unmarkErr != nil {
        log.Printf("confirm-consumer: unmark %s failed: %v", m.CorrelationID, unmarkErr)
    }
    return err
}
