package model

import (
	"testing"
	"time"
)

func TestReservationRecordExpired(t *testing.T) {
	t.Parallel()

	expiry := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	rec := ReservationRecord{TicketID: 1, HolderID: "h", Quantity: 1, ExpiresAt: expiry}

	if rec.Expired(expiry.Add(-time.Nanosecond)) {
		t.Fatalf("a hold must be live just before its expiry")
	}
	// At exactly the expiry instant the hold is gone.
	if !rec.Expired(expiry) {
		t.Fatalf("a hold must be expired at its exact expiry instant")
	}
	if !rec.Expired(expiry.Add(time.Second)) {
		t.Fatalf("a hold must be expired after its expiry")
	}
}

func TestSeatLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		seat Seat
		want string
	}{
		{Seat{Row: "A", Number: 12}, "A12"},
		{Seat{Row: "B", Number: 1}, "B1"},
		{Seat{Row: "AA", Number: 7}, "AA7"},
	}
	for _, tc := range cases {
		if got := tc.seat.Label(); got != tc.want {
			t.Fatalf("Seat{%s,%d}.Label() = %q, want %q", tc.seat.Row, tc.seat.Number, got, tc.want)
		}
	}
}
