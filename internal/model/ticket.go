package model

import "strconv"

// Ticket describes a sellable ticket type for an event date.  A ticket
// type either sells an undifferentiated quantity (general admission) or
// individually numbered seats.  The remaining quantity is tracked by the
// inventory ledger in the cache tier; Total and PriceCents live in the
// durable store and never change during a sale.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – event date this ticket type belongs to.
//  Name       – display name (e.g. "Early Bird", "VIP").
//  Total      – total quantity ever put on sale.
//  PriceCents – unit price in cents.
//  Seated     – true when the ticket type sells assigned seats.
type Ticket struct {
    ID         uint64 // tickets.id
    EventID    uint64 // tickets.event_id
    Name       string // tickets.name
    Total      int64  // tickets.total_quantity
    PriceCents uint32 // tickets.price_cents
    Seated     bool   // tickets.is_seated
}

// Seat identifies one assigned seat within a seated ticket type.  Row and
// Number together are unique per ticket type and form part of the cache
// key for seat locks, so their textual form must stay stable.
type Seat struct {
    Row    string `json:"row"`    // row label, e.g. "A"
    Number uint32 `json:"number"` // seat number within the row
}

// Label renders the seat in its row+number form, e.g. "A12".  This is
// the representation embedded in seat-lock keys.
func (s Seat) Label() string {
    return s.Row + strconv.FormatUint(uint64(s.Number), 10)
}
