// Package model defines the domain types shared across the reservation
// engine together with the error taxonomy. These sentinel values allow
// higher layers such as handlers and consumers to distinguish between
// different failure scenarios. Business-rule failures (oversold, seat
// conflict, invalid quantity, missing hold) are legitimate outcomes and
// must never be retried automatically; only infrastructure failures are.
package model

import (
    "errors"
    "fmt"
)

// ErrOversold is returned when a reservation asks for more tickets than
// remain in the ledger. Handlers should translate this into an HTTP 409
// response.
var ErrOversold = errors.New("insufficient remaining tickets")

// ErrSeatConflict is returned when a requested seat is already locked by
// a different holder. Handlers should translate this into an HTTP 409
// response.
var ErrSeatConflict = errors.New("seat already held")

// ErrReservationNotFound is returned when a hold is missing or expired
// at confirmation time. Handlers should translate this into an HTTP 404
// response.
var ErrReservationNotFound = errors.New("reservation not found or expired")

// ErrInvalidQuantity is returned when a requested quantity is not
// positive or exceeds the per-order maximum. Handlers should translate
// this into an HTTP 400 response.
var ErrInvalidQuantity = errors.New("invalid quantity")

// ErrConfiguration signals missing store or broker wiring detected at
// construction time. It is fatal: the process cannot serve reservations
// without its stores.
var ErrConfiguration = errors.New("missing configuration")

// ProcessingError wraps a transient consumer failure with the attempt
// count at which it occurred. Consumers retry these with bounded backoff
// and dead-letter the message after exhaustion.
type ProcessingError struct {
    Attempt int
    Err     error
}

func (e *ProcessingError) Error() string {
    return fmt.Sprintf("message processing failed (attempt %d): %v", e.Attempt, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
