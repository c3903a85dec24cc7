package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/worker"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/config"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/logger"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New("order-producer", cfg.Common.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer func() { _ = rc.Close() }()

	if err := worker.BuildTopology(cfg.Topology).Declare(rc.Ch); err != nil {
		log.Fatal().Err(err).Msg("declare topology failed")
	}

	ch := rc.Ch
	if cfg.Rabbit.Confirms {
		if ch, err = rc.ConfirmChannel(); err != nil {
			log.Fatal().Err(err).Msg("open confirm channel failed")
		}
	}
	pub := rabbit.NewPublisher(ch, cfg.Topology.MainExchange)

	for i, o := range models.SampleOrders() {
		if i > 0 && !wait(ctx, cfg.Simulation.PublishInterval) {
			log.Warn().Msg("interrupted")
			return
		}

		msgID, err := publishOrder(ctx, pub, cfg.Topology.MainRoutingKey, o)
		if err != nil {
			log.Fatal().Err(err).Int("order_id", o.ID).Msg("publish order failed")
		}

		log.Info().
			Str("message_id", msgID).
			Int("order_id", o.ID).
			Str("type", string(o.Type)).
			Str("exchange", cfg.Topology.MainExchange).
			Msg("order published")
	}
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any, msg amqp.Publishing) error
}

// publishOrder sends o with a fresh message id. First deliveries carry no
// retry counter; consumers read it as attempt 0.
func publishOrder(ctx context.Context, pub jsonPublisher, routingKey string, o models.Order) (string, error) {
	msgID := uuid.NewString()

	pubCtx, cancel := rabbit.WithTimeout(ctx)
	defer cancel()
	if err := pub.PublishJSON(pubCtx, routingKey, o, amqp.Publishing{MessageId: msgID}); err != nil {
		return "", err
	}
	return msgID, nil
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
