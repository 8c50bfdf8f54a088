package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-reservation/internal/handler"
    "github.com/iliyamo/ticket-reservation/internal/middleware"
)

// RegisterRoutes registers routes that do not require a session on the
// provided Echo instance: the health check, ticket metadata and the
// public availability snapshot.
func RegisterRoutes(e *echo.Echo, r *handler.ReservationHandler, t *handler.TicketHandler) {
    e.GET("/healthz", handler.Health)
    e.GET("/v1/tickets/:id", t.Info)
    e.GET("/v1/tickets/:id/availability", r.Availability)
}

// RegisterReservations registers the reservation endpoints.  Every route
// in this group needs a holder identity, resolved by the HolderSession
// middleware from a session token or a cart session header.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, sessionSecret string) {
    g := e.Group("/v1/reservations")
    g.Use(middleware.HolderSession(sessionSecret))
    g.POST("", r.Reserve)
    g.DELETE("", r.Release)
    g.POST("/confirm", r.Confirm)
}

// RegisterOrders registers the order history endpoint, also behind the
// holder session.
func RegisterOrders(e *echo.Echo, o *handler.OrderHandler, sessionSecret string) {
    g := e.Group("/v1/orders")
    g.Use(middleware.HolderSession(sessionSecret))
    g.GET("", o.List)
}
