package model

import "time"

// Order is the durable record created by the confirmation consumer once a
// provisional hold has been paid for.  Orders are terminal: they are
// never created by the reservation path itself and never mutated after
// insertion.  CorrelationID carries the idempotency key of the message
// that produced the order.
//
// Fields:
//  ID               – primary key identifier.
//  HolderID         – user or cart session that placed the order.
//  CorrelationID    – deduplication key of the confirming message.
//  TotalAmountCents – total price in cents across all items.
//  PaymentRef       – payment intent identifier, if any.
//  CreatedAt        – creation timestamp.
type Order struct {
    ID               uint64     // orders.id
    HolderID         string     // orders.holder_id
    CorrelationID    string     // orders.correlation_id
    TotalAmountCents uint32     // orders.total_amount_cents
    PaymentRef       *string    // orders.payment_ref (nullable)
    CreatedAt        time.Time  // orders.created_at
}

// OrderItem is one line of a durable order: a ticket type, the purchased
// quantity and the unit price at confirmation time.  SeatLabels records
// the assigned seats in their row+number form for seated ticket types.
type OrderItem struct {
    ID         uint64   // order_items.id
    OrderID    uint64   // order_items.order_id
    TicketID   uint64   // order_items.ticket_id
    Quantity   int64    // order_items.quantity
    PriceCents uint32   // order_items.price_cents
    SeatLabels []string // order_items.seat_labels (comma separated)
}
