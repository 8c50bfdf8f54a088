package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-reservation/internal/middleware"
    "github.com/iliyamo/ticket-reservation/internal/model"
)

// OrderLister reads a holder's confirmed orders from the durable store.
type OrderLister interface {
    ListByHolder(ctx context.Context, holderID string) ([]model.Order, map[uint64][]model.OrderItem, error)
}

// OrderHandler serves the holder's durable order history.
type OrderHandler struct {
    Orders OrderLister
}

// NewOrderHandler constructs a handler around the order store.
func NewOrderHandler(orders OrderLister) *OrderHandler {
    if orders == nil {
        panic("nil order store passed to NewOrderHandler")
    }
    return &OrderHandler{Orders: orders}
}

type orderItemResponse struct {
    TicketID   uint64   `json:"ticket_id"`
    Quantity   int64    `json:"quantity"`
    PriceCents uint32   `json:"price_cents"`
    Seats      []string `json:"seats,omitempty"`
}

type orderResponse struct {
    ID               uint64              `json:"id"`
    CorrelationID    string              `json:"correlation_id"`
    TotalAmountCents uint32              `json:"total_amount_cents"`
    PaymentRef       *string             `json:"payment_ref,omitempty"`
    CreatedAt        time.Time           `json:"created_at"`
    Items            []orderItemResponse `json:"items"`
}

// List handles GET /v1/orders.  It returns the holder's confirmed orders
// newest first; provisional holds never appear here.
func (h *OrderHandler) List(c echo.Context) error {
    holderID := middleware.HolderID(c)
    if holderID == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    orders, items, err := h.Orders.ListByHolder(c.Request().Context(), holderID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    out := make([]orderResponse, 0, len(orders))
    for _, o := range orders {
        resp := orderResponse{
            ID:               o.ID,
            CorrelationID:    o.CorrelationID,
            TotalAmountCents: o.TotalAmountCents,
            PaymentRef:       o.PaymentRef,
            CreatedAt:        o.CreatedAt,
        }
        for _, it := range items[o.ID] {
            resp.Items = append(resp.Items, orderItemResponse{
                TicketID:   it.TicketID,
                Quantity:   it.Quantity,
                PriceCents: it.PriceCents,
                Seats:      it.SeatLabels,
            })
        }
        out = append(out, resp)
    }
    return c.JSON(http.StatusOK, echo.Map{"orders": out})
}
