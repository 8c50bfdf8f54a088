package expiry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/store"
)

type memDeadlines struct {
	entries map[string]entry
}

type entry struct {
	d         store.Deadline
	expiresAt time.Time
}

func newMemDeadlines() *memDeadlines {
	return &memDeadlines{entries: make(map[string]entry)}
}

func pairKey(ticketID uint64, holderID string) string {
	return fmt.Sprintf("%d:%s", ticketID, holderID)
}

func (m *memDeadlines) Add(ctx context.Context, d store.Deadline, expiresAt time.Time) error {
	m.entries[pairKey(d.TicketID, d.HolderID)] = entry{d: d, expiresAt: expiresAt}
	return nil
}

func (m *memDeadlines) PopDue(ctx context.Context, now time.Time) ([]store.Deadline, error) {
	var due []store.Deadline
	for key, e := range m.entries {
		if !e.expiresAt.After(now) {
			due = append(due, e.d)
			delete(m.entries, key)
		}
	}
	return due, nil
}

type memRecords struct {
	records map[string]model.ReservationRecord
	getErr  error
}

func (m *memRecords) Get(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error) {
	if m.getErr != nil {
		return model.ReservationRecord{}, m.getErr
	}
	rec, ok := m.records[pairKey(ticketID, holderID)]
	if !ok {
		return model.ReservationRecord{}, model.ErrReservationNotFound
	}
	return rec, nil
}

type memLedger struct {
	counters   map[uint64]int64
	releaseErr error
}

func (m *memLedger) Release(ctx context.Context, ticketID uint64, qty int64) (int64, error) {
	if m.releaseErr != nil {
		return 0, m.releaseErr
	}
	m.counters[ticketID] += qty
	return m.counters[ticketID], nil
}

// stepClock is a fake clock the test moves forward by hand.
type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type memSeats struct{ released []string }

func (m *memSeats) ReleaseSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error {
	m.released = append(m.released, fmt.Sprintf("%d:%s", ticketID, seat.Label()))
	return nil
}

func TestSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("lapsed hold credits the ledger and frees seats", func(t *testing.T) {
		deadlines := newMemDeadlines()
		seat := model.Seat{Row: "A", Number: 4}
		d := store.Deadline{TicketID: 42, HolderID: "holder-1", Quantity: 2, Seats: []model.Seat{seat}}
		if err := deadlines.Add(ctx, d, now.Add(-time.Minute)); err != nil {
			t.Fatalf("seed deadline: %v", err)
		}
		// The record is gone: Redis TTL already dropped it.
		records := &memRecords{records: map[string]model.ReservationRecord{}}
		ledger := &memLedger{counters: map[uint64]int64{42: 8}}
		seats := &memSeats{}

		s := New(deadlines, records, ledger, seats, clock.NewFixed(now), time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if got := ledger.counters[42]; got != 10 {
			t.Fatalf("expected the counter credited back to 10, got %d", got)
		}
		if len(seats.released) != 1 || seats.released[0] != "42:A4" {
			t.Fatalf("expected the seat freed, got %v", seats.released)
		}
		if len(deadlines.entries) != 0 {
			t.Fatalf("the reconciled deadline must not be re-armed")
		}
	})

	t.Run("live record means the hold was replaced and re-arms", func(t *testing.T) {
		deadlines := newMemDeadlines()
		d := store.Deadline{TicketID: 42, HolderID: "holder-1", Quantity: 2}
		if err := deadlines.Add(ctx, d, now.Add(-time.Minute)); err != nil {
			t.Fatalf("seed deadline: %v", err)
		}
		later := now.Add(10 * time.Minute)
		records := &memRecords{records: map[string]model.ReservationRecord{
			pairKey(42, "holder-1"): {TicketID: 42, HolderID: "holder-1", Quantity: 2, ExpiresAt: later},
		}}
		ledger := &memLedger{counters: map[uint64]int64{42: 8}}

		s := New(deadlines, records, ledger, &memSeats{}, clock.NewFixed(now), time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if got := ledger.counters[42]; got != 8 {
			t.Fatalf("a live hold must not be compensated, counter moved to %d", got)
		}
		e, ok := deadlines.entries[pairKey(42, "holder-1")]
		if !ok {
			t.Fatalf("expected the deadline re-armed")
		}
		if !e.expiresAt.Equal(later) {
			t.Fatalf("re-armed deadline should use the record's expiry, got %v", e.expiresAt)
		}
	})

	t.Run("lingering expired record is still compensated", func(t *testing.T) {
		deadlines := newMemDeadlines()
		d := store.Deadline{TicketID: 42, HolderID: "holder-1", Quantity: 3}
		if err := deadlines.Add(ctx, d, now.Add(-time.Minute)); err != nil {
			t.Fatalf("seed deadline: %v", err)
		}
		records := &memRecords{records: map[string]model.ReservationRecord{
			pairKey(42, "holder-1"): {TicketID: 42, HolderID: "holder-1", Quantity: 3, ExpiresAt: now.Add(-time.Second)},
		}}
		ledger := &memLedger{counters: map[uint64]int64{42: 7}}

		s := New(deadlines, records, ledger, &memSeats{}, clock.NewFixed(now), time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if got := ledger.counters[42]; got != 10 {
			t.Fatalf("expected the counter credited back to 10, got %d", got)
		}
	})

	t.Run("transient record read failure re-arms without compensating", func(t *testing.T) {
		deadlines := newMemDeadlines()
		d := store.Deadline{TicketID: 42, HolderID: "holder-1", Quantity: 2}
		if err := deadlines.Add(ctx, d, now.Add(-time.Minute)); err != nil {
			t.Fatalf("seed deadline: %v", err)
		}
		records := &memRecords{getErr: errors.New("cache gone")}
		ledger := &memLedger{counters: map[uint64]int64{42: 8}}

		s := New(deadlines, records, ledger, &memSeats{}, clock.NewFixed(now), time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if got := ledger.counters[42]; got != 8 {
			t.Fatalf("must not compensate on a read failure, counter moved to %d", got)
		}
		if _, ok := deadlines.entries[pairKey(42, "holder-1")]; !ok {
			t.Fatalf("expected the deadline re-armed for the next pass")
		}
	})

	t.Run("ledger failure re-arms so the credit is not lost", func(t *testing.T) {
		deadlines := newMemDeadlines()
		d := store.Deadline{TicketID: 42, HolderID: "holder-1", Quantity: 2}
		if err := deadlines.Add(ctx, d, now.Add(-time.Minute)); err != nil {
			t.Fatalf("seed deadline: %v", err)
		}
		records := &memRecords{records: map[string]model.ReservationRecord{}}
		ledger := &memLedger{counters: map[uint64]int64{42: 8}, releaseErr: errors.New("cache gone")}

		clk := &stepClock{now: now}
		s := New(deadlines, records, ledger, &memSeats{}, clk, time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if _, ok := deadlines.entries[pairKey(42, "holder-1")]; !ok {
			t.Fatalf("expected the deadline re-armed after the failed credit")
		}

		// The next pass finishes the job.
		ledger.releaseErr = nil
		clk.now = now.Add(2 * time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("second sweep: %v", err)
		}
		if got := ledger.counters[42]; got != 10 {
			t.Fatalf("expected the counter credited back to 10, got %d", got)
		}
	})

	t.Run("future deadlines are left alone", func(t *testing.T) {
		deadlines := newMemDeadlines()
		d := store.Deadline{TicketID: 42, HolderID: "holder-1", Quantity: 2}
		if err := deadlines.Add(ctx, d, now.Add(time.Hour)); err != nil {
			t.Fatalf("seed deadline: %v", err)
		}
		ledger := &memLedger{counters: map[uint64]int64{42: 8}}

		s := New(deadlines, &memRecords{}, ledger, &memSeats{}, clock.NewFixed(now), time.Second)
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if got := ledger.counters[42]; got != 8 {
			t.Fatalf("a future deadline must not be touched, counter moved to %d", got)
		}
		if len(deadlines.entries) != 1 {
			t.Fatalf("the future deadline must stay indexed")
		}
	})
}
