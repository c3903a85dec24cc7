package worker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/metrics"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

// RetryScheduler moves failed messages through the retry queue. It is the
// only component that increments the attempt counter.
type RetryScheduler struct {
	Log zerolog.Logger

	RetryPub        Publisher
	RetryRoutingKey string

	MainPub        Publisher
	MainRoutingKey string

	MaxRetries int
	Backoff    Backoff

	Sink *DeadLetterSink
}

// Schedule is the publish step. Below the bound the envelope is republished
// to the retry exchange with the next attempt number and the original is
// acked afterwards. At the bound it is handed to the dead-letter sink.
func (s *RetryScheduler) Schedule(ctx context.Context, st *settler, env Envelope, cause error) Disposition {
	if int(env.Attempt) >= s.MaxRetries {
		return s.Sink.Publish(ctx, st, env, cause)
	}

	next := env
	next.Attempt = env.Attempt.next()

	pubCtx, cancel := rabbit.WithTimeout(ctx)
	defer cancel()
	if err := s.RetryPub.PublishMessage(pubCtx, s.RetryRoutingKey, next.Publishing()); err != nil {
		metrics.PublishErrorsTotal.WithLabelValues(s.RetryPub.Exchange()).Inc()
		withEnvelope(s.Log.Error(), env).
			Err(err).
			Str("outcome", Requeue.String()).
			Msg("retry publish failed, requeueing original")
		if err := st.requeue(); err != nil {
			withEnvelope(s.Log.Error(), env).Err(err).Msg("requeue failed")
		}
		return Requeue
	}

	// Ack, not reject: a reject would also dead-letter the original.
	if err := st.ack(); err != nil {
		// The retry copy is already out; a redelivered original is a duplicate.
		withEnvelope(s.Log.Error(), env).Err(err).Msg("ack after retry publish failed")
	}

	withEnvelope(s.Log.Info(), next).
		Int("max_retries", s.MaxRetries).
		Str("outcome", Retry.String()).
		Msg("message scheduled for retry")
	return Retry
}

// Forward is the retry queue handler. It waits the backoff for the
// message's attempt, republishes it unchanged to the main exchange and acks
// the retry delivery.
func (s *RetryScheduler) Forward(ctx context.Context, d amqp.Delivery) Disposition {
	st := newSettler(d)
	env := EnvelopeFromDelivery(d)
	delay := s.Backoff.Delay(env.Attempt)

	withEnvelope(s.Log.Info(), env).
		Int("max_retries", s.MaxRetries).
		Dur("delay", delay).
		Msg("retrying message after backoff")

	if !sleep(ctx, delay) {
		withEnvelope(s.Log.Warn(), env).
			Str("outcome", Abandon.String()).
			Msg("shutdown during backoff, leaving delivery for redelivery")
		return Abandon
	}
	metrics.RetryDelaySeconds.Observe(delay.Seconds())

	pubCtx, cancel := rabbit.WithTimeout(ctx)
	defer cancel()
	if err := s.MainPub.PublishMessage(pubCtx, s.MainRoutingKey, env.Publishing()); err != nil {
		metrics.PublishErrorsTotal.WithLabelValues(s.MainPub.Exchange()).Inc()
		withEnvelope(s.Log.Error(), env).
			Err(err).
			Str("outcome", Requeue.String()).
			Msg("forward to main exchange failed, requeueing")
		if err := st.requeue(); err != nil {
			withEnvelope(s.Log.Error(), env).Err(err).Msg("requeue failed")
		}
		return Requeue
	}

	if err := st.ack(); err != nil {
		withEnvelope(s.Log.Error(), env).Err(err).Msg("ack after forward failed")
	}
	withEnvelope(s.Log.Info(), env).
		Str("outcome", Retry.String()).
		Msg("retry forwarded to main exchange")
	return Retry
}
