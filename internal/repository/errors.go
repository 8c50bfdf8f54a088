package repository

import "errors"

// ErrTicketNotFound is returned when a ticket type does not exist in the
// durable store.  Handlers should translate this into an HTTP 404
// response.  It is a sentinel of this package; callers never see the
// driver's own not-found error.
var ErrTicketNotFound = errors.New("ticket not found")
