package worker

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

// Attempt counts completed retry hops of one logical message. The zero value
// is the first delivery: a message published without the header is on
// attempt 0.
type Attempt int32

// AttemptFromHeaders reads the retry counter, treating a missing, malformed
// or negative header as 0.
func AttemptFromHeaders(h amqp.Table) Attempt {
	n := rabbit.GetInt32(h, rabbit.HeaderRetryCount)
	if n < 0 {
		return 0
	}
	return Attempt(n)
}

// next is only called by the retry scheduler.
func (a Attempt) next() Attempt { return a + 1 }

// Envelope is the unit of work: an opaque payload plus retry metadata that
// travels as headers.
type Envelope struct {
	MessageID   string
	ContentType string
	Body        []byte
	Attempt     Attempt

	// TerminalReason is set only on the way to the dead-letter exchange.
	TerminalReason string

	// Order is decoded best effort for logging; OrderErr holds the decode
	// failure if any.
	Order    models.Order
	OrderErr error
}

func EnvelopeFromDelivery(d amqp.Delivery) Envelope {
	env := Envelope{
		MessageID:   d.MessageId,
		ContentType: d.ContentType,
		Body:        d.Body,
		Attempt:     AttemptFromHeaders(d.Headers),
	}
	env.Order, env.OrderErr = models.DecodeOrder(d.Body)
	return env
}

// Publishing builds the outgoing message. The payload is never modified;
// only the retry metadata headers are rewritten.
func (e Envelope) Publishing() amqp.Publishing {
	headers := amqp.Table{
		rabbit.HeaderRetryCount: int32(e.Attempt),
	}
	if e.TerminalReason != "" {
		headers[rabbit.HeaderDeathReason] = e.TerminalReason
	}
	return amqp.Publishing{
		MessageId:   e.MessageID,
		ContentType: e.ContentType,
		Body:        e.Body,
		Headers:     headers,
	}
}
