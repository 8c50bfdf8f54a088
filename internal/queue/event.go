// Package queue defines the message envelopes exchanged over the broker
// and the publisher/consumer pair that moves reservations between the
// fast provisional tier and the durable order store.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// Kind discriminates the reservation message variants.  The envelope is
// an explicit tagged union: every payload field is typed and decoding
// rejects unknown kinds instead of accepting an open-ended document.
type Kind string

const (
    KindReservationCreated   Kind = "reservation.created"
    KindReservationCancelled Kind = "reservation.cancelled"
    KindReservationConfirmed Kind = "reservation.confirmed"
)

// Queue names, one per message kind.  Each queue has its own consumer
// and an independent dead-letter companion (see DeadQueue).
const (
    QueueReservationCreated   = "ticket-reservation-created"
    QueueReservationCancelled = "ticket-reservation-cancelled"
    QueueReservationConfirmed = "ticket-reservation-confirmed"
)

// DeadQueue returns the dead-letter queue name for a primary queue.
func DeadQueue(name string) string { return name + ".dead" }

// QueueFor maps a message kind to its queue, or "" for an unknown kind.
func QueueFor(k Kind) string {
    switch k {
    case KindReservationCreated:
        return QueueReservationCreated
    case KindReservationCancelled:
        return QueueReservationCancelled
    case KindReservationConfirmed:
        return QueueReservationConfirmed
    }
    return ""
}

// Message is the reservation envelope published at-least-once onto the
// broker.  CorrelationID is the deduplication key for idempotent
// consumers: two deliveries with the same id must produce exactly one
// durable effect.
type Message struct {
    Kind          Kind                    `json:"kind"`
    CorrelationID string                  `json:"correlation_id"`
    HolderID      string                  `json:"holder_id"`
    Items         []model.ReservationItem `json:"items"`
    Timestamp     time.Time               `json:"timestamp"`
}

var errBadEnvelope = errors.New("invalid message envelope")

// Encode serializes the envelope after validating it, so malformed
// messages are caught at the publishing side rather than poisoning a
// queue.
func (m Message) Encode() ([]byte, error) {
    if err := m.validate(); err != nil {
        return nil, err
    }
    return json.Marshal(m)
}

// Decode parses and validates an envelope received from the broker.
// Validation failures are permanent: the consumer dead-letters such
// messages without retrying.
func Decode(body []byte) (Message, error) {
    var m Message
    if err := json.Unmarshal(body, &m); err != nil {
        return Message{}, fmt.Errorf("%w: %v", errBadEnvelope, err)
    }
    if err := m.validate(); err != nil {
        return Message{}, err
    }
    return m, nil
}

func (m Message) validate() error {
    if QueueFor(m.Kind) == "" {
        return fmt.Errorf("%w: unknown kind %q", errBadEnvelope, m.Kind)
    }
    if m.CorrelationID == "" {
        return fmt.Errorf("%w: missing correlation id", errBadEnvelope)
    }
    if m.HolderID == "" {
        return fmt.Errorf("%w: missing holder id", errBadEnvelope)
    }
    if len(m.Items) == 0 {
        return fmt.Errorf("%w: no items", errBadEnvelope)
    }
    for _, it := range m.Items {
        if it.TicketID == 0 || it.Quantity <= 0 {
            return fmt.Errorf("%w: bad item for ticket %d", errBadEnvelope, it.TicketID)
        }
        if len(it.Seats) > 0 && int64(len(it.Seats)) != it.Quantity {
            return fmt.Errorf("%w: seat count mismatch for ticket %d", errBadEnvelope, it.TicketID)
        }
    }
    return nil
}
