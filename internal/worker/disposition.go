package worker

import (
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var (
	// ErrPermanent marks failures that retrying cannot fix, such as an
	// undecodable payload.
	ErrPermanent = errors.New("permanent failure")

	// ErrProcessingTimeout is reported when the business operation outlives
	// the main queue TTL.
	ErrProcessingTimeout = errors.New("processing exceeded main queue ttl")

	errAlreadySettled = errors.New("delivery already settled")
)

// Disposition is the single routing decision taken for one delivery.
type Disposition int

const (
	// Abandon leaves the delivery unsettled; the broker redelivers it once
	// the channel closes.
	Abandon Disposition = iota
	Ack
	Retry
	DeadLetter
	// Expire rejects without requeue so the main queue's dead-letter
	// arguments route the message.
	Expire
	// Requeue returns the delivery to its queue after a failed handoff.
	Requeue
	Duplicate
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "acked"
	case Retry:
		return "retry_scheduled"
	case DeadLetter:
		return "dead_lettered"
	case Expire:
		return "expired"
	case Requeue:
		return "requeued"
	case Duplicate:
		return "duplicate"
	default:
		return "abandoned"
	}
}

// Decide maps a processing result to a disposition. It is the only place
// the retry bound is applied.
func Decide(attempt Attempt, maxRetries int, err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrProcessingTimeout):
		return Expire
	case errors.Is(err, ErrPermanent):
		return DeadLetter
	case int(attempt) < maxRetries:
		return Retry
	default:
		return DeadLetter
	}
}

// settler guards a delivery so it is settled at most once.
type settler struct {
	mu      sync.Mutex
	d       amqp.Delivery
	settled bool
}

func newSettler(d amqp.Delivery) *settler { return &settler{d: d} }

func (s *settler) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return errAlreadySettled
	}
	s.settled = true
	return fn()
}

func (s *settler) ack() error { return s.do(func() error { return s.d.Ack(false) }) }

func (s *settler) reject() error { return s.do(func() error { return s.d.Reject(false) }) }

func (s *settler) requeue() error { return s.do(func() error { return s.d.Nack(false, true) }) }

func withEnvelope(ev *zerolog.Event, env Envelope) *zerolog.Event {
	ev = ev.Str("message_id", env.MessageID).Int32("attempt", int32(env.Attempt))
	if env.OrderErr == nil {
		ev = ev.Int("order_id", env.Order.ID).Str("type", string(env.Order.Type))
	}
	return ev
}
