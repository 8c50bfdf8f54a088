// Package repository provides data access to the durable relational
// store.  Orders and their items are written here exclusively by the
// confirmation consumer; the reservation path never touches this tier.
package repository

import (
    "context"
    "database/sql"
    "strings"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// OrderRepo provides access to the orders and order_items tables.  All
// timestamp fields are assumed to be stored in UTC.
type OrderRepo struct {
    db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// ExistsByCorrelationID reports whether an order has already been
// persisted for the given correlation id.  The confirmation consumer
// uses this as its durable idempotency backstop.
func (r *OrderRepo) ExistsByCorrelationID(ctx context.Context, correlationID string) (bool, error) {
    const q = `SELECT 1 FROM orders WHERE correlation_id = ? LIMIT 1`
    var one int
    err := r.db.QueryRowContext(ctx, q, correlationID).Scan(&one)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

// Create inserts an order and its items in a single transaction and
// returns the order with its generated ID and timestamps populated.  The
// correlation_id column carries a unique index, so a concurrent duplicate
// insert fails instead of producing a second order for the same message.
func (r *OrderRepo) Create(ctx context.Context, order model.Order, items []model.OrderItem) (model.Order, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return model.Order{}, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const ins = `INSERT INTO orders (holder_id, correlation_id, total_amount_cents, payment_ref) VALUES (?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, ins, order.HolderID, order.CorrelationID, order.TotalAmountCents, order.PaymentRef)
    if err != nil {
        return model.Order{}, err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return model.Order{}, err
    }
    order.ID = uint64(id)

    if len(items) > 0 {
        query := `INSERT INTO order_items (order_id, ticket_id, quantity, price_cents, seat_labels) VALUES `
        args := make([]interface{}, 0, len(items)*5)
        for i, it := range items {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?, ?, ?)"
            args = append(args, order.ID, it.TicketID, it.Quantity, it.PriceCents, strings.Join(it.SeatLabels, ","))
        }
        if _, err := tx.ExecContext(ctx, query, args...); err != nil {
            return model.Order{}, err
        }
    }

    // Query back the full row to populate timestamps and defaults.
    const sel = `SELECT id, holder_id, correlation_id, total_amount_cents, payment_ref, created_at FROM orders WHERE id = ?`
    var paymentRef sql.NullString
    if err := tx.QueryRowContext(ctx, sel, order.ID).Scan(
        &order.ID, &order.HolderID, &order.CorrelationID, &order.TotalAmountCents,
        &paymentRef, &order.CreatedAt,
    ); err != nil {
        return model.Order{}, err
    }
    if paymentRef.Valid {
        ref := paymentRef.String
        order.PaymentRef = &ref
    }

    if err := tx.Commit(); err != nil {
        return model.Order{}, err
    }
    committed = true
    return order, nil
}

// ListByHolder returns all orders placed by a holder, newest first, with
// their items populated.
func (r *OrderRepo) ListByHolder(ctx context.Context, holderID string) ([]model.Order, map[uint64][]model.OrderItem, error) {
    const q = `SELECT id, holder_id, correlation_id, total_amount_cents, payment_ref, created_at
               FROM orders WHERE holder_id = ? ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, holderID)
    if err != nil {
        return nil, nil, err
    }
    defer rows.Close()
    orders := make([]model.Order, 0)
    for rows.Next() {
        var o model.Order
        var paymentRef sql.NullString
        if err := rows.Scan(&o.ID, &o.HolderID, &o.CorrelationID, &o.TotalAmountCents, &paymentRef, &o.CreatedAt); err != nil {
            return nil, nil, err
        }
        if paymentRef.Valid {
            ref := paymentRef.String
            o.PaymentRef = &ref
        }
        orders = append(orders, o)
    }
    if err := rows.Err(); err != nil {
        return nil, nil, err
    }
    if len(orders) == 0 {
        return orders, map[uint64][]model.OrderItem{}, nil
    }

    ids := make([]interface{}, 0, len(orders))
    placeholders := make([]string, 0, len(orders))
    for _, o := range orders {
        ids = append(ids, o.ID)
        placeholders = append(placeholders, "?")
    }
    itemQ := `SELECT id, order_id, ticket_id, quantity, price_cents, seat_labels
              FROM order_items WHERE order_id IN (` + strings.Join(placeholders, ",") + `)`
    irows, err := r.db.QueryContext(ctx, itemQ, ids...)
    if err != nil {
        return nil, nil, err
    }
    defer irows.Close()
    items := make(map[uint64][]model.OrderItem)
    for irows.Next() {
        var it model.OrderItem
        var labels string
        if err := irows.Scan(&it.ID, &it.OrderID, &it.TicketID, &it.Quantity, &it.PriceCents, &labels); err != nil {
            return nil, nil, err
        }
        if labels != "" {
            it.SeatLabels = strings.Split(labels, ",")
        }
        items[it.OrderID] = append(items[it.OrderID], it)
    }
    if err := irows.Err(); err != nil {
        return nil, nil, err
    }
    return orders, items, nil
}
