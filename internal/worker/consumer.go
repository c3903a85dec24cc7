package worker

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/metrics"
)

// ErrDeliveriesClosed is returned when the broker closes a delivery channel
// while the consumer is still running.
var ErrDeliveriesClosed = errors.New("deliveries channel closed")

// HandleFunc settles one delivery and reports what it did.
type HandleFunc func(ctx context.Context, d amqp.Delivery) Disposition

// Consumer runs one queue's handler. Up to Limit deliveries are handled
// concurrently so a delivery waiting on backoff does not stall the queue;
// Limit should equal the channel's prefetch.
type Consumer struct {
	Log    zerolog.Logger
	Queue  string
	Limit  int
	Handle HandleFunc
}

// Run blocks until ctx ends or deliveries closes, then waits for in-flight
// handlers.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	var g errgroup.Group
	if c.Limit > 0 {
		g.SetLimit(c.Limit)
	}
	inFlight := metrics.InFlight.WithLabelValues(c.Queue)

	c.Log.Info().Str("queue", c.Queue).Int("limit", c.Limit).Msg("consumer started")

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			c.Log.Info().Str("queue", c.Queue).Msg("consumer stopped")
			break loop
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() == nil {
					runErr = ErrDeliveriesClosed
					c.Log.Error().Str("queue", c.Queue).Msg("deliveries closed")
				}
				break loop
			}
			g.Go(func() error {
				inFlight.Inc()
				defer inFlight.Dec()

				disp := c.Handle(ctx, d)
				metrics.OutcomesTotal.WithLabelValues(c.Queue, disp.String()).Inc()
				return nil
			})
		}
	}

	_ = g.Wait()
	return runErr
}
