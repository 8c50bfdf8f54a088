// Package store implements the cache tier of the reservation engine on
// Redis: the per-ticket inventory ledger, seat locks, TTL'd reservation
// records, the deadline index consumed by the expiry sweeper and the
// processed-message set used for consumer idempotency.  Every mutation is
// a single atomic Redis operation (DECRBY, INCRBY, SETNX, Lua scripts);
// no component performs a read-modify-write across round trips.
package store

import (
    "fmt"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// KeyScheme builds the cache keys used by all stores.  The prefix
// namespaces everything except the seat-lock and booked-seat keys, whose
// shapes are fixed because existing data in the cache already uses them.
// A KeyScheme is passed explicitly into each store at construction; there
// is no process-wide key table.
type KeyScheme struct {
    Prefix string
}

// NewKeyScheme returns a scheme with the given namespace prefix.  An
// empty prefix falls back to "tickets".
func NewKeyScheme(prefix string) KeyScheme {
    if prefix == "" {
        prefix = "tickets"
    }
    return KeyScheme{Prefix: prefix}
}

// Remaining is the inventory counter key for one ticket type.
func (k KeyScheme) Remaining(ticketID uint64) string {
    return fmt.Sprintf("%s:ticket:%d:remaining_tickets", k.Prefix, ticketID)
}

// Reservation is the key of the TTL'd hold record for a (ticket, holder)
// pair.
func (k KeyScheme) Reservation(ticketID uint64, holderID string) string {
    return fmt.Sprintf("%s:reservation:%d:%s", k.Prefix, ticketID, holderID)
}

// SeatLock is the exclusive-hold key for one seat.  Note the fixed
// "lock:reserve" namespace and the row+number concatenation.
func (k KeyScheme) SeatLock(ticketID uint64, seat model.Seat) string {
    return fmt.Sprintf("lock:reserve:%d:%s", ticketID, seat.Label())
}

// ReservedSeat marks a seat as provisionally taken while its hold lives.
func (k KeyScheme) ReservedSeat(ticketID uint64, seat model.Seat) string {
    return fmt.Sprintf("%s:reserved_ticket:%d:seat:%s:%d", k.Prefix, ticketID, seat.Row, seat.Number)
}

// BookedSeat marks a seat as permanently sold after confirmation.
func (k KeyScheme) BookedSeat(ticketID uint64, seat model.Seat) string {
    return fmt.Sprintf("booked:%d:seat:%s-%d", ticketID, seat.Row, seat.Number)
}

// Deadlines is the sorted set feeding the expiry sweeper.
func (k KeyScheme) Deadlines() string {
    return k.Prefix + ":reservation:deadlines"
}

// DeadlineData is the hash holding the payload of each deadline entry,
// keyed by the same (ticket, holder) member as the sorted set.
func (k KeyScheme) DeadlineData() string {
    return k.Prefix + ":reservation:deadline_data"
}

// Processed is the idempotency marker for a consumed message.
func (k KeyScheme) Processed(correlationID string) string {
    return k.Prefix + ":processed:" + correlationID
}
