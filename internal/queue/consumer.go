package queue

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/ticket-reservation/internal/model"
)

// Processor applies the side effects of one decoded message.  It returns
// nil when the message is done (including idempotent skips and permanent
// business failures the consumer should not retry), Permanent(err) when
// the message can never succeed, or any other error for a transient
// fault worth retrying.
type Processor interface {
    Process(ctx context.Context, m Message) error
}

// permanentError marks a failure that retrying cannot fix; the consumer
// moves the message to the dead-letter queue immediately.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the consumer dead-letters without retrying.
func Permanent(err error) error { return &permanentError{err: err} }

// RetryPolicy bounds how often a transient processing failure is retried
// before the message is dead-lettered.
type RetryPolicy struct {
    Attempts int           // total processing attempts per delivery
    Interval time.Duration // fixed pause between attempts
}

func (r *RetryPolicy) fill() {
    if r.Attempts <= 0 {
        r.Attempts = 3
    }
    if r.Interval <= 0 {
        r.Interval = time.Second
    }
}

// Consumer runs one queue's processing loop.  The loop reconnects with
// capped exponential backoff when the broker connection drops, processes
// each delivery with the bounded retry policy, and republishes exhausted
// or permanently failed messages to the queue's dead-letter companion
// before acking, so the primary queue never wedges on a poison message.
type Consumer struct {
    url    string
    queue  string
    proc   Processor
    policy RetryPolicy
}

// NewConsumer builds a consumer for the named queue.
func NewConsumer(url, queueName string, proc Processor, policy RetryPolicy) (*Consumer, error) {
    if url == "" || queueName == "" || proc == nil {
        return nil, fmt.Errorf("consumer: %w: url, queue and processor required", model.ErrConfiguration)
    }
    policy.fill()
    return &Consumer{url: url, queue: queueName, proc: proc, policy: policy}, nil
}

// Run consumes until ctx is cancelled.  Connection failures trigger a
// reconnect loop with backoff capped at 30 seconds.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.url)
        if err != nil {
            log.Printf("consumer[%s]: dial broker: %v; retrying in %s", c.queue, err, backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        if err := c.consumeLoop(ctx, conn); err != nil {
            _ = conn.Close()
            if ctx.Err() != nil {
                return ctx.Err()
            }
            log.Printf("consumer[%s]: consume loop ended: %v; reconnecting", c.queue, err)
            if !sleepCtx(ctx, 2*time.Second) {
                return ctx.Err()
            }
            continue
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("consumer[%s]: set QoS failed: %v", c.queue, err)
    }

    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    if _, err := ch.QueueDeclare(DeadQueue(c.queue), true, false, false, false, nil); err != nil {
        return fmt.Errorf("dead queue declare: %w", err)
    }

    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            c.handleDelivery(ctx, ch, d)
        }
    }
}

func (c *Consumer) handleDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
    msg, err := Decode(d.Body)
    if err != nil {
        // A malformed envelope can never succeed; dead-letter it at once.
        log.Printf("consumer[%s]: invalid message: %v", c.queue, err)
        c.deadLetter(ctx, ch, d.Body)
        _ = d.Ack(false)
        return
    }

    var lastErr error
    for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
        lastErr = c.proc.Process(ctx, msg)
        if lastErr == nil {
            _ = d.Ack(false)
            return
        }
        var perm *permanentError
        if errors.As(lastErr, &perm) {
            log.Printf("consumer[%s]: permanent failure for %s: %v", c.queue, msg.CorrelationID, lastErr)
            c.deadLetter(ctx, ch, d.Body)
            _ = d.Ack(false)
            return
        }
        log.Printf("consumer[%s]: %v", c.queue, &model.ProcessingError{Attempt: attempt, Err: lastErr})
        if attempt < c.policy.Attempts && !sleepCtx(ctx, c.policy.Interval) {
            break
        }
    }

    // Retries exhausted: the reservation is unresolved and eligible for
    // manual reconciliation or forced expiry via the dead-letter queue.
    log.Printf("consumer[%s]: dead-lettering %s after %d attempts: %v", c.queue, msg.CorrelationID, c.policy.Attempts, lastErr)
    c.deadLetter(ctx, ch, d.Body)
    _ = d.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, ch *amqp.Channel, body []byte) {
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", DeadQueue(c.queue), false, false, pub); err != nil {
        log.Printf("consumer[%s]: dead-letter publish failed: %v", c.queue, err)
    }
}

// sleepCtx pauses for d unless ctx is cancelled first; it reports whether
// the full pause elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
