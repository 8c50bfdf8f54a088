package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-reservation/internal/engine"
    "github.com/iliyamo/ticket-reservation/internal/middleware"
    "github.com/iliyamo/ticket-reservation/internal/model"
    "github.com/iliyamo/ticket-reservation/internal/queue"
)

// ReservationHandler exposes the reservation engine's operations over
// HTTP.  Handlers only bind input, invoke the engine and translate the
// error taxonomy into status codes; no business rule lives here.
type ReservationHandler struct {
    Engine *engine.Engine
}

// NewReservationHandler constructs a handler around the engine.
func NewReservationHandler(eng *engine.Engine) *ReservationHandler {
    if eng == nil {
        panic("nil engine passed to NewReservationHandler")
    }
    return &ReservationHandler{Engine: eng}
}

// Reserve handles POST /v1/reservations.  The body carries the items of
// one purchase attempt; on success the provisional holds and their
// shared expiry are returned with 201.
func (h *ReservationHandler) Reserve(c echo.Context) error {
    holderID := middleware.HolderID(c)
    if holderID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Items []model.ReservationItem `json:"items"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res, err := h.Engine.Reserve(c.Request().Context(), holderID, body.Items)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "correlation_id": res.CorrelationID,
        "expires_at":     res.ExpiresAt,
        "reservations":   res.Records,
    })
}

// Release handles DELETE /v1/reservations.  The engine synchronously
// drops the holder's holds for the given ticket types, credits stock
// back and publishes a cancellation event for the freed holds.
func (h *ReservationHandler) Release(c echo.Context) error {
    holderID := middleware.HolderID(c)
    if holderID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        TicketIDs []uint64 `json:"ticket_ids"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.TicketIDs) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_ids is required"})
    }
    released, err := h.Engine.Release(c.Request().Context(), holderID, body.TicketIDs)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Confirm handles POST /v1/reservations/confirm.  It validates that
// every hold is still live, then publishes a confirmation intent; the
// durable order is created asynchronously by the confirmation consumer.
func (h *ReservationHandler) Confirm(c echo.Context) error {
    holderID := middleware.HolderID(c)
    if holderID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Items []model.ReservationItem `json:"items"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.Items) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "items is required"})
    }
    ctx := c.Request().Context()
    ids := make([]uint64, 0, len(body.Items))
    for _, it := range body.Items {
        ids = append(ids, it.TicketID)
    }
    ok, err := h.Engine.Validate(ctx, holderID, ids)
    if err != nil {
        return writeEngineError(c, err)
    }
    if !ok {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found or expired"})
    }
    correlationID, err := h.Engine.PublishIntent(ctx, queue.KindReservationConfirmed, holderID, body.Items)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to enqueue confirmation"})
    }
    return c.JSON(http.StatusAccepted, echo.Map{"correlation_id": correlationID})
}

// Availability handles GET /v1/tickets/:id/availability.  The count is a
// display-only snapshot of the inventory ledger.
func (h *ReservationHandler) Availability(c echo.Context) error {
    ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || ticketID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
    }
    remaining, err := h.Engine.Availability(c.Request().Context(), ticketID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"ticket_id": ticketID, "remaining": remaining})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, model.ErrOversold):
        return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient remaining tickets"})
    case errors.Is(err, model.ErrSeatConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "seat already held"})
    case errors.Is(err, model.ErrReservationNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found or expired"})
    case errors.Is(err, model.ErrInvalidQuantity):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid quantity"})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}
