package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler is the business operation. It must be safe to abandon when ctx
// ends and safe to run more than once for the same message id.
type Handler func(ctx context.Context, env Envelope) error

// Processed tracks message ids whose business operation completed, so
// redeliveries are acked without running it again.
type Processed interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// Processor consumes the main queue.
type Processor struct {
	Log zerolog.Logger

	Handler Handler

	// Deadline bounds the business operation. It matches the main queue
	// TTL: past it the message is rejected into the dead-letter path.
	Deadline time.Duration

	MaxRetries int
	Scheduler  *RetryScheduler
	Sink       *DeadLetterSink

	// Processed is optional.
	Processed Processed
}

func (p *Processor) Handle(ctx context.Context, d amqp.Delivery) Disposition {
	st := newSettler(d)
	env := EnvelopeFromDelivery(d)

	withEnvelope(p.Log.Debug(), env).Bool("redelivered", d.Redelivered).Msg("processing message")

	if p.alreadyProcessed(ctx, env) {
		if err := st.ack(); err != nil {
			withEnvelope(p.Log.Error(), env).Err(err).Msg("ack duplicate failed")
		}
		withEnvelope(p.Log.Info(), env).Str("outcome", Duplicate.String()).Msg("already processed, skipping")
		return Duplicate
	}

	err := p.run(ctx, env)
	if err != nil && ctx.Err() != nil {
		withEnvelope(p.Log.Warn(), env).
			Err(err).
			Str("outcome", Abandon.String()).
			Msg("shutdown during processing, leaving delivery for redelivery")
		return Abandon
	}

	disp := Decide(env.Attempt, p.MaxRetries, err)
	if err != nil {
		withEnvelope(p.Log.Error(), env).
			Err(err).
			Str("decision", disp.String()).
			Msg("error processing message")
	}

	switch disp {
	case Ack:
		if err := st.ack(); err != nil {
			withEnvelope(p.Log.Error(), env).Err(err).Str("outcome", Abandon.String()).Msg("ack failed")
			return Abandon
		}
		p.markProcessed(ctx, env)
		withEnvelope(p.Log.Info(), env).Str("outcome", disp.String()).Msg("message processed successfully")
		return Ack

	case Retry:
		return p.Scheduler.Schedule(ctx, st, env, err)

	case DeadLetter:
		return p.Sink.Publish(ctx, st, env, err)

	case Expire:
		if err := st.reject(); err != nil {
			withEnvelope(p.Log.Error(), env).Err(err).Str("outcome", Abandon.String()).Msg("reject expired delivery failed")
			return Abandon
		}
		withEnvelope(p.Log.Warn(), env).
			Str("outcome", disp.String()).
			Dur("deadline", p.Deadline).
			Msg("processing outlived main queue ttl, rejected to dead-letter exchange")
		return Expire
	}
	return Abandon
}

func (p *Processor) run(ctx context.Context, env Envelope) error {
	if env.OrderErr != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, env.OrderErr)
	}

	opCtx := ctx
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	err := p.Handler(opCtx, env)
	if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrProcessingTimeout, p.Deadline, err)
	}
	return err
}

func (p *Processor) alreadyProcessed(ctx context.Context, env Envelope) bool {
	if p.Processed == nil || env.MessageID == "" {
		return false
	}
	done, err := p.Processed.IsProcessed(ctx, env.MessageID)
	if err != nil {
		withEnvelope(p.Log.Warn(), env).Err(err).Msg("idempotency lookup failed, processing anyway")
		return false
	}
	return done
}

func (p *Processor) markProcessed(ctx context.Context, env Envelope) {
	if p.Processed == nil || env.MessageID == "" {
		return
	}
	if err := p.Processed.MarkProcessed(ctx, env.MessageID); err != nil {
		withEnvelope(p.Log.Warn(), env).Err(err).Msg("mark processed failed")
	}
}
