package queue

import (
    "context"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// Publisher emits reservation envelopes onto their queues.  It owns a
// broker connection injected at construction and opens a short-lived
// channel per publish, since AMQP channels are not safe for concurrent
// use.  All three queues are declared durable up front so publishes and
// consumes can start in any order.
type Publisher struct {
    conn *amqp.Connection
}

// NewPublisher declares the reservation queues (and their dead-letter
// companions) on the given connection and returns a publisher bound to
// it.  The caller keeps ownership of the connection.
func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
    if conn == nil {
        return nil, fmt.Errorf("publisher: %w: amqp connection", model.ErrConfiguration)
    }
    ch, err := conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("publisher: open channel: %w", err)
    }
    defer func() { _ = ch.Close() }()
    for _, name := range []string{QueueReservationCreated, QueueReservationCancelled, QueueReservationConfirmed} {
        if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
            return nil, fmt.Errorf("publisher: declare %s: %w", name, err)
        }
        if _, err := ch.QueueDeclare(DeadQueue(name), true, false, false, false, nil); err != nil {
            return nil, fmt.Errorf("publisher: declare %s: %w", DeadQueue(name), err)
        }
    }
    return &Publisher{conn: conn}, nil
}

// Publish routes the message to the queue matching its kind.  Messages
// are persistent so they survive broker restarts; delivery is
// at-least-once and consumers deduplicate by correlation id.
func (p *Publisher) Publish(ctx context.Context, m Message) error {
    body, err := m.Encode()
    if err != nil {
        return err
    }
    ch, err := p.conn.Channel()
    if err != nil {
        return fmt.Errorf("publisher: open channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    pub := amqp.Publishing{
        ContentType:   "application/json",
        DeliveryMode:  amqp.Persistent,
        CorrelationId: m.CorrelationID,
        Timestamp:     time.Now().UTC(),
        Body:          body,
    }
    if err := ch.PublishWithContext(ctx, "", QueueFor(m.Kind), false, false, pub); err != nil {
        return fmt.Errorf("publisher: publish %s: %w", m.Kind, err)
    }
    return nil
}
