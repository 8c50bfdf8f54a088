package queue

import (
	"testing"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

func validMessage() Message {
	return Message{
		Kind:          KindReservationCreated,
		CorrelationID: "c0ffee",
		HolderID:      "holder-1",
		Items: []model.ReservationItem{
			{TicketID: 42, Quantity: 2, Seats: []model.Seat{{Row: "A", Number: 1}, {Row: "A", Number: 2}}},
		},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	in := validMessage()
	body, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != in.Kind || out.CorrelationID != in.CorrelationID || out.HolderID != in.HolderID {
		t.Fatalf("envelope fields lost in transit: %+v", out)
	}
	if len(out.Items) != 1 || out.Items[0].TicketID != 42 || len(out.Items[0].Seats) != 2 {
		t.Fatalf("items lost in transit: %+v", out.Items)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Message)
	}{
		{"unknown kind", func(m *Message) { m.Kind = "reservation.exploded" }},
		{"empty kind", func(m *Message) { m.Kind = "" }},
		{"missing correlation id", func(m *Message) { m.CorrelationID = "" }},
		{"missing holder id", func(m *Message) { m.HolderID = "" }},
		{"no items", func(m *Message) { m.Items = nil }},
		{"zero ticket id", func(m *Message) { m.Items[0].TicketID = 0 }},
		{"non-positive quantity", func(m *Message) { m.Items[0].Quantity = 0 }},
		{"seat count mismatch", func(m *Message) { m.Items[0].Seats = m.Items[0].Seats[:1] }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validMessage()
			tc.mutate(&m)
			// Encode must refuse to produce the payload at all.
			if _, err := m.Encode(); err == nil {
				t.Fatalf("encode accepted a malformed envelope")
			}
		})
	}

	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatalf("decode accepted non-JSON input")
	}
	if _, err := Decode([]byte(`{"kind":"reservation.created"}`)); err == nil {
		t.Fatalf("decode accepted an envelope with no correlation id")
	}
}

func TestQueueFor(t *testing.T) {
	t.Parallel()

	cases := map[Kind]string{
		KindReservationCreated:   QueueReservationCreated,
		KindReservationCancelled: QueueReservationCancelled,
		KindReservationConfirmed: QueueReservationConfirmed,
		Kind("bogus"):            "",
	}
	for kind, want := range cases {
		if got := QueueFor(kind); got != want {
			t.Fatalf("QueueFor(%q) = %q, want %q", kind, got, want)
		}
	}
	if got := DeadQueue(QueueReservationConfirmed); got != "ticket-reservation-confirmed.dead" {
		t.Fatalf("unexpected dead queue name %q", got)
	}
}
