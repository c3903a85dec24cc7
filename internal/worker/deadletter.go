package worker

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/metrics"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

// Publisher sends a message to the exchange it is bound to.
type Publisher interface {
	Exchange() string
	PublishMessage(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// Recorder persists terminal dispositions.
type Recorder interface {
	Record(ctx context.Context, dl models.DeadLetter) error
}

// DeadLetterSink owns the terminal path: it publishes exhausted messages to
// the dead-letter exchange and consumes the dead-letter queue.
type DeadLetterSink struct {
	Log zerolog.Logger

	Pub        Publisher
	RoutingKey string
	Queue      string

	// GracePeriod is waited before the dead-letter publish.
	GracePeriod time.Duration

	// Recorder is optional; without it observations are only logged.
	Recorder Recorder
}

// Publish annotates env with cause and hands it to the dead-letter exchange.
// The original delivery is acked only after the publish succeeded; a failed
// publish requeues it.
func (s *DeadLetterSink) Publish(ctx context.Context, st *settler, env Envelope, cause error) Disposition {
	env.TerminalReason = cause.Error()

	withEnvelope(s.Log.Warn(), env).
		Str("reason", env.TerminalReason).
		Dur("grace", s.GracePeriod).
		Msg("retries exhausted, moving to dead-letter exchange")

	if !sleep(ctx, s.GracePeriod) {
		withEnvelope(s.Log.Warn(), env).
			Str("outcome", Abandon.String()).
			Msg("shutdown during dead-letter grace period, leaving delivery for redelivery")
		return Abandon
	}

	pubCtx, cancel := rabbit.WithTimeout(ctx)
	defer cancel()
	if err := s.Pub.PublishMessage(pubCtx, s.RoutingKey, env.Publishing()); err != nil {
		metrics.PublishErrorsTotal.WithLabelValues(s.Pub.Exchange()).Inc()
		withEnvelope(s.Log.Error(), env).
			Err(err).
			Str("outcome", Requeue.String()).
			Msg("dead-letter publish failed, requeueing original")
		if err := st.requeue(); err != nil {
			withEnvelope(s.Log.Error(), env).Err(err).Msg("requeue failed")
		}
		return Requeue
	}

	// Ack, not reject: a reject would route a second copy through the main
	// queue's dead-letter exchange.
	if err := st.ack(); err != nil {
		withEnvelope(s.Log.Error(), env).Err(err).Msg("ack after dead-letter publish failed")
	}
	withEnvelope(s.Log.Info(), env).
		Str("reason", env.TerminalReason).
		Str("outcome", DeadLetter.String()).
		Msg("message dead-lettered")
	return DeadLetter
}

// Observe is the dead-letter queue handler. Every delivery is terminal: it
// is logged, recorded and acked regardless of recording errors.
func (s *DeadLetterSink) Observe(ctx context.Context, d amqp.Delivery) Disposition {
	st := newSettler(d)
	dl := DeadLetterFromDelivery(d, time.Now())

	metrics.DeadLettersTotal.WithLabelValues(dl.Source).Inc()
	s.Log.Warn().
		Str("queue", s.Queue).
		Str("message_id", dl.MessageID).
		Int("order_id", dl.OrderID).
		Int32("attempt", dl.Attempts).
		Str("source", dl.Source).
		Str("reason", dl.Reason).
		Str("original_queue", dl.OriginalQueue).
		RawJSON("body", dl.Body).
		Str("outcome", Ack.String()).
		Msg("dead-lettered message received")

	if s.Recorder != nil {
		if err := s.Recorder.Record(ctx, dl); err != nil {
			s.Log.Error().Err(err).Str("message_id", dl.MessageID).Msg("record dead letter failed")
		}
	}

	if err := st.ack(); err != nil {
		s.Log.Error().Err(err).Str("message_id", dl.MessageID).Msg("dead-letter ack failed")
	}
	return Ack
}

// DeadLetterFromDelivery classifies a dead-letter queue delivery. Messages
// published by the sink carry x-death-reason; broker-routed ones carry
// x-death.
func DeadLetterFromDelivery(d amqp.Delivery, now time.Time) models.DeadLetter {
	env := EnvelopeFromDelivery(d)
	dl := models.DeadLetter{
		MessageID:  env.MessageID,
		Attempts:   int32(env.Attempt),
		Body:       rawBody(d.Body),
		ReceivedAt: now,
		Source:     models.DeadLetterUnknown,
	}
	if env.OrderErr == nil {
		dl.OrderID = env.Order.ID
	}

	if reason := rabbit.GetString(d.Headers, rabbit.HeaderDeathReason); reason != "" {
		dl.Source = models.DeadLetterExplicit
		dl.Reason = reason
	}
	if death, ok := rabbit.FirstDeath(d.Headers); ok {
		dl.OriginalQueue = death.Queue
		if dl.Source == models.DeadLetterUnknown && death.Reason != "" {
			dl.Source = death.Reason
			dl.Reason = "broker dead-lettered: " + death.Reason
		}
	}
	return dl
}

func rawBody(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return json.RawMessage(quoted)
}

// sleep waits for d or until ctx ends and reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
