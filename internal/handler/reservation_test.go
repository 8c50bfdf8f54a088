package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/engine"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/store"
)

// In-memory single-threaded stand-ins for the cache tier; the handler
// tests drive one request at a time.

type memLedger struct{ counters map[uint64]int64 }

func (l *memLedger) Reserve(ctx context.Context, ticketID uint64, qty int64) (int64, error) {
	l.counters[ticketID] -= qty
	if l.counters[ticketID] < 0 {
		l.counters[ticketID] += qty
		return l.counters[ticketID], fmt.Errorf("ticket %d: %w", ticketID, model.ErrOversold)
	}
	return l.counters[ticketID], nil
}

func (l *memLedger) Release(ctx context.Context, ticketID uint64, qty int64) (int64, error) {
	l.counters[ticketID] += qty
	return l.counters[ticketID], nil
}

func (l *memLedger) Peek(ctx context.Context, ticketID uint64) (int64, error) {
	return l.counters[ticketID], nil
}

type memSeats struct{ locks map[string]string }

func (s *memSeats) AcquireSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string, ttl time.Duration) error {
	key := fmt.Sprintf("%d:%s", ticketID, seat.Label())
	if owner, held := s.locks[key]; held && owner != holderID {
		return fmt.Errorf("seat %s: %w", seat.Label(), model.ErrSeatConflict)
	}
	s.locks[key] = holderID
	return nil
}

func (s *memSeats) ReleaseSeat(ctx context.Context, ticketID uint64, seat model.Seat, holderID string) error {
	key := fmt.Sprintf("%d:%s", ticketID, seat.Label())
	if s.locks[key] == holderID {
		delete(s.locks, key)
	}
	return nil
}

type memRecords struct {
	records map[string]model.ReservationRecord
	clk     clock.Clock
}

func pairKey(ticketID uint64, holderID string) string {
	return fmt.Sprintf("%d:%s", ticketID, holderID)
}

func (r *memRecords) CreateOrReplace(ctx context.Context, ticketID uint64, holderID string, qty int64, seats []model.Seat, ttl time.Duration) (model.ReservationRecord, error) {
	now := r.clk.Now()
	rec := model.ReservationRecord{
		TicketID: ticketID, HolderID: holderID, Quantity: qty, Seats: seats,
		ReservedAt: now, ExpiresAt: now.Add(ttl),
	}
	r.records[pairKey(ticketID, holderID)] = rec
	return rec, nil
}

func (r *memRecords) Get(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error) {
	rec, ok := r.records[pairKey(ticketID, holderID)]
	if !ok {
		return model.ReservationRecord{}, model.ErrReservationNotFound
	}
	return rec, nil
}

func (r *memRecords) Validate(ctx context.Context, ticketID uint64, holderID string) (bool, error) {
	rec, ok := r.records[pairKey(ticketID, holderID)]
	return ok && !rec.Expired(r.clk.Now()), nil
}

func (r *memRecords) Release(ctx context.Context, ticketID uint64, holderID string) (model.ReservationRecord, error) {
	key := pairKey(ticketID, holderID)
	rec, ok := r.records[key]
	if !ok {
		return model.ReservationRecord{}, model.ErrReservationNotFound
	}
	delete(r.records, key)
	return rec, nil
}

type memDeadlines struct{}

func (memDeadlines) Add(ctx context.Context, d store.Deadline, expiresAt time.Time) error { return nil }
func (memDeadlines) Remove(ctx context.Context, d store.Deadline) error                   { return nil }
func (memDeadlines) RemoveFor(ctx context.Context, ticketID uint64, holderID string) error {
	return nil
}

type memPublisher struct{ messages []queue.Message }

func (p *memPublisher) Publish(ctx context.Context, m queue.Message) error {
	p.messages = append(p.messages, m)
	return nil
}

type testAPI struct {
	e         *echo.Echo
	h         *ReservationHandler
	ledger    *memLedger
	seats     *memSeats
	published *memPublisher
}

func newTestAPI(t *testing.T, seed map[uint64]int64) *testAPI {
	t.Helper()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ledger := &memLedger{counters: seed}
	seats := &memSeats{locks: make(map[string]string)}
	records := &memRecords{records: make(map[string]model.ReservationRecord), clk: clk}
	published := &memPublisher{}
	eng, err := engine.New(ledger, seats, records, memDeadlines{}, published, clk, engine.Options{})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return &testAPI{e: echo.New(), h: NewReservationHandler(eng), ledger: ledger, seats: seats, published: published}
}

// do runs one request through the handler with the holder id already
// resolved, the way the session middleware would leave it.
func (a *testAPI) do(t *testing.T, method, target, holderID, body string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := a.e.NewContext(req, rec)
	if holderID != "" {
		c.Set("holder_id", holderID)
	}
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestReserveEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("successful reservation returns 201 with the holds", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 10})
		rec := api.do(t, http.MethodPost, "/v1/reservations", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":3}]}`, api.h.Reserve)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			CorrelationID string                    `json:"correlation_id"`
			ExpiresAt     time.Time                 `json:"expires_at"`
			Reservations  []model.ReservationRecord `json:"reservations"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.CorrelationID == "" || len(resp.Reservations) != 1 {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if got := api.ledger.counters[42]; got != 7 {
			t.Fatalf("expected remaining 7, got %d", got)
		}
	})

	t.Run("oversell maps to 409", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 2})
		rec := api.do(t, http.MethodPost, "/v1/reservations", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":5}]}`, api.h.Reserve)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := api.ledger.counters[42]; got != 2 {
			t.Fatalf("the counter must be untouched, got %d", got)
		}
	})

	t.Run("seat conflict maps to 409", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 10})
		api.seats.locks["42:A1"] = "holder-other"
		rec := api.do(t, http.MethodPost, "/v1/reservations", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":1,"seats":[{"row":"A","number":1}]}]}`, api.h.Reserve)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("invalid quantity maps to 400", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 10})
		rec := api.do(t, http.MethodPost, "/v1/reservations", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":0}]}`, api.h.Reserve)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing holder maps to 401", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 10})
		rec := api.do(t, http.MethodPost, "/v1/reservations", "",
			`{"items":[{"ticket_id":42,"quantity":1}]}`, api.h.Reserve)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestReleaseEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, map[uint64]int64{42: 10})
	rec := api.do(t, http.MethodPost, "/v1/reservations", "holder-1",
		`{"items":[{"ticket_id":42,"quantity":3}]}`, api.h.Reserve)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed reservation failed: %d", rec.Code)
	}

	rec = api.do(t, http.MethodDelete, "/v1/reservations", "holder-1",
		`{"ticket_ids":[42]}`, api.h.Release)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Released int `json:"released"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Released != 1 {
		t.Fatalf("expected released 1, got %d", resp.Released)
	}
	if got := api.ledger.counters[42]; got != 10 {
		t.Fatalf("expected remaining 10 after release, got %d", got)
	}

	rec = api.do(t, http.MethodDelete, "/v1/reservations", "holder-1",
		`{"ticket_ids":[]}`, api.h.Release)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ticket_ids should be 400, got %d", rec.Code)
	}
}

func TestConfirmEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("live hold is accepted and an intent is enqueued", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 10})
		rec := api.do(t, http.MethodPost, "/v1/reservations", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":2}]}`, api.h.Reserve)
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed reservation failed: %d", rec.Code)
		}

		rec = api.do(t, http.MethodPost, "/v1/reservations/confirm", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":2}]}`, api.h.Confirm)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		last := api.published.messages[len(api.published.messages)-1]
		if last.Kind != queue.KindReservationConfirmed {
			t.Fatalf("expected a confirmation intent, got %s", last.Kind)
		}
	})

	t.Run("confirming without a hold is 404", func(t *testing.T) {
		api := newTestAPI(t, map[uint64]int64{42: 10})
		rec := api.do(t, http.MethodPost, "/v1/reservations/confirm", "holder-1",
			`{"items":[{"ticket_id":42,"quantity":2}]}`, api.h.Confirm)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(api.published.messages) != 0 {
			t.Fatalf("no intent may be enqueued for a missing hold")
		}
	})
}

func TestAvailabilityEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, map[uint64]int64{42: 7})

	req := httptest.NewRequest(http.MethodGet, "/v1/tickets/42/availability", nil)
	rec := httptest.NewRecorder()
	c := api.e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("42")
	if err := api.h.Availability(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		TicketID  uint64 `json:"ticket_id"`
		Remaining int64  `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TicketID != 42 || resp.Remaining != 7 {
		t.Fatalf("unexpected availability: %+v", resp)
	}

	rec2 := httptest.NewRecorder()
	c = api.e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/tickets/x/availability", nil), rec2)
	c.SetParamNames("id")
	c.SetParamValues("x")
	if err := api.h.Availability(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", rec2.Code)
	}
}
