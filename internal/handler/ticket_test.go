package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

type memTickets struct{ tickets map[uint64]model.Ticket }

func (m *memTickets) Get(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.Ticket{}, repository.ErrTicketNotFound
	}
	return t, nil
}

func ticketInfo(t *testing.T, h *TicketHandler, id string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/tickets/"+id, nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Info(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestTicketInfo(t *testing.T) {
	t.Parallel()

	h := NewTicketHandler(&memTickets{tickets: map[uint64]model.Ticket{
		42: {ID: 42, EventID: 7, Name: "Early Bird", Total: 100, PriceCents: 2500, Seated: true},
	}})

	rec := ticketInfo(t, h, "42")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		ID         uint64 `json:"id"`
		Name       string `json:"name"`
		PriceCents uint32 `json:"price_cents"`
		Seated     bool   `json:"seated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 || resp.Name != "Early Bird" || resp.PriceCents != 2500 || !resp.Seated {
		t.Fatalf("unexpected ticket info: %+v", resp)
	}

	if rec := ticketInfo(t, h, "99"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown ticket, got %d", rec.Code)
	}
	if rec := ticketInfo(t, h, "abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed id, got %d", rec.Code)
	}
}
