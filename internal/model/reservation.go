package model

import "time"

// ReservationStatus enumerates the lifecycle of a provisional hold.  A
// holder moves a reservation from Reserved into exactly one terminal
// state; afterwards a fresh Reserved cycle may begin for the same pair.
type ReservationStatus string

const (
    StatusReserved  ReservationStatus = "RESERVED"
    StatusConfirmed ReservationStatus = "CONFIRMED"
    StatusReleased  ReservationStatus = "RELEASED"
    StatusExpired   ReservationStatus = "EXPIRED"
)

// ReservationRecord is the short-lived cache record describing one
// provisional hold of a ticket type by a holder.  It is written with a
// TTL so the common abandonment case is handled by cache-native expiry.
// At most one record exists per (ticket type, holder) pair; a repeat
// reservation replaces the record rather than adding to it.
//
// Fields:
//  TicketID   – ticket type being held.
//  HolderID   – user or cart session owning the hold.
//  Quantity   – number of tickets held.
//  Seats      – assigned seats, empty for general admission.
//  ReservedAt – when the hold was taken.
//  ExpiresAt  – ReservedAt plus the configured hold duration.
type ReservationRecord struct {
    TicketID   uint64    `json:"ticket_id"`
    HolderID   string    `json:"holder_id"`
    Quantity   int64     `json:"quantity"`
    Seats      []Seat    `json:"seats,omitempty"`
    ReservedAt time.Time `json:"reserved_at"`
    ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the record's hold has lapsed at the given
// instant.  Comparisons are performed in UTC.
func (r ReservationRecord) Expired(now time.Time) bool {
    return !now.UTC().Before(r.ExpiresAt.UTC())
}

// ReservationItem is one line of a purchase request: a ticket type, the
// requested quantity and, for seated ticket types, the chosen seats.
// For seated items Quantity must equal len(Seats).
type ReservationItem struct {
    TicketID uint64 `json:"ticket_id"`
    Quantity int64  `json:"quantity"`
    Seats    []Seat `json:"seats,omitempty"`
}
