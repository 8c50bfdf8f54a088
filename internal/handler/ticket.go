package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-reservation/internal/model"
    "github.com/iliyamo/ticket-reservation/internal/repository"
)

// TicketReader reads ticket type metadata from the durable store.
type TicketReader interface {
    Get(ctx context.Context, ticketID uint64) (model.Ticket, error)
}

// TicketHandler serves public ticket type metadata.
type TicketHandler struct {
    Tickets TicketReader
}

// NewTicketHandler constructs a handler around the ticket store.
func NewTicketHandler(tickets TicketReader) *TicketHandler {
    if tickets == nil {
        panic("nil ticket store passed to NewTicketHandler")
    }
    return &TicketHandler{Tickets: tickets}
}

// Info handles GET /v1/tickets/:id.  Remaining stock is intentionally
// absent here; the availability endpoint serves the live cache snapshot.
func (h *TicketHandler) Info(c echo.Context) error {
    ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || ticketID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
    }
    t, err := h.Tickets.Get(c.Request().Context(), ticketID)
    if errors.Is(err, repository.ErrTicketNotFound) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
    }
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":          t.ID,
        "event_id":    t.EventID,
        "name":        t.Name,
        "total":       t.Total,
        "price_cents": t.PriceCents,
        "seated":      t.Seated,
    })
}
