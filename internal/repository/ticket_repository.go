package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// TicketRepo reads ticket type metadata from the durable store.  The
// remaining count here reflects durable bookkeeping only; the cache-tier
// inventory ledger is authoritative during a sale.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// Get returns the full metadata of a ticket type.
func (r *TicketRepo) Get(ctx context.Context, ticketID uint64) (model.Ticket, error) {
    const q = `SELECT id, event_id, name, total_quantity, price_cents, is_seated FROM tickets WHERE id = ?`
    var t model.Ticket
    err := r.db.QueryRowContext(ctx, q, ticketID).Scan(&t.ID, &t.EventID, &t.Name, &t.Total, &t.PriceCents, &t.Seated)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return model.Ticket{}, fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
        }
        return model.Ticket{}, err
    }
    return t, nil
}

// GetPrice returns the unit price in cents for a ticket type.
func (r *TicketRepo) GetPrice(ctx context.Context, ticketID uint64) (uint32, error) {
    const q = `SELECT price_cents FROM tickets WHERE id = ?`
    var price uint32
    if err := r.db.QueryRowContext(ctx, q, ticketID).Scan(&price); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return 0, fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
        }
        return 0, err
    }
    return price, nil
}

// ListIDs returns the ids of every ticket type in the durable store,
// used at startup to warm the inventory ledger.
func (r *TicketRepo) ListIDs(ctx context.Context) ([]uint64, error) {
    const q = `SELECT id FROM tickets ORDER BY id`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// GetTotal returns the total quantity ever put on sale for a ticket
// type, used to seed the inventory ledger when sales open.
func (r *TicketRepo) GetTotal(ctx context.Context, ticketID uint64) (int64, error) {
    const q = `SELECT total_quantity FROM tickets WHERE id = ?`
    var total int64
    if err := r.db.QueryRowContext(ctx, q, ticketID).Scan(&total); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return 0, fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
        }
        return 0, err
    }
    return total, nil
}

// GetRemaining returns the durable view of remaining stock: total minus
// quantities consumed by confirmed orders.  Display and reconciliation
// only; never a gate for reservations.
func (r *TicketRepo) GetRemaining(ctx context.Context, ticketID uint64) (int64, error) {
    const q = `SELECT t.total_quantity - COALESCE(SUM(oi.quantity), 0)
               FROM tickets t
               LEFT JOIN order_items oi ON oi.ticket_id = t.id
               WHERE t.id = ?
               GROUP BY t.total_quantity`
    var remaining int64
    if err := r.db.QueryRowContext(ctx, q, ticketID).Scan(&remaining); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return 0, fmt.Errorf("ticket %d: %w", ticketID, ErrTicketNotFound)
        }
        return 0, err
    }
    return remaining, nil
}
