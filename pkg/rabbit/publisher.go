package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNacked is returned when the broker negatively confirms a publish.
var ErrNacked = errors.New("rabbit: publish nacked by broker")

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
}

func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Exchange() string { return p.exchange }

// PublishMessage sends msg as a persistent JSON message. When the channel is
// in confirm mode it blocks until the broker confirms or ctx ends.
func (p *Publisher) PublishMessage(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	p.mu.Lock()
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		msg,
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
	}

	// nil when the channel is not in confirm mode
	if dc == nil {
		return nil
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm from %s/%s: %w", p.exchange, routingKey, err)
	}
	if !ok {
		return fmt.Errorf("%s/%s: %w", p.exchange, routingKey, ErrNacked)
	}
	return nil
}

// PublishJSON marshals v into the body of msg and publishes it; the other
// properties of msg, such as MessageId and headers, are kept.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any, msg amqp.Publishing) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s/%s: %w", p.exchange, routingKey, err)
	}
	msg.Body = b
	msg.ContentType = "application/json"
	return p.PublishMessage(ctx, routingKey, msg)
}
