package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/http"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/http/handlers"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/repo"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/internal/worker"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/cache"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/config"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/logger"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Common.ServiceName, cfg.Common.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
	log.Info().Msg("worker stopped")
}

// run returns only after every resource it opened has been closed.
func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	checks := map[string]handlers.Check{}

	// --- Postgres (optional dead-letter store) ---
	var deadLetters *repo.DeadLettersPG
	if cfg.Postgres.DSN != "" {
		ctxDB, cancelDB := context.WithTimeout(ctx, 5*time.Second)
		defer cancelDB()

		db, err := pgxpool.New(ctxDB, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("pg connect: %w", err)
		}
		defer db.Close()

		deadLetters = &repo.DeadLettersPG{DB: db}
		if err := deadLetters.EnsureSchema(ctxDB); err != nil {
			return fmt.Errorf("pg schema: %w", err)
		}
		checks["postgres"] = db.Ping
	}

	// --- Redis (optional idempotency store) ---
	var processed worker.Processed
	if cfg.Redis.Addr != "" {
		rdb := cache.New(cfg.Redis.Addr)
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx)
		pingCancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continue without idempotency store")
		} else {
			processed = &repo.ProcessedRedis{Redis: rdb, TTL: cfg.Redis.ProcessTTL}
			checks["redis"] = rdb.Ping
		}
	}

	// --- RabbitMQ ---
	rc, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		return fmt.Errorf("rabbit connect: %w", err)
	}
	defer func() { _ = rc.Close() }()

	if err := worker.BuildTopology(cfg.Topology).Declare(rc.Ch); err != nil {
		if rabbit.IsPreconditionFailed(err) {
			log.Error().Msg("topology conflicts with existing broker state, delete the queues or align the configuration")
		}
		return fmt.Errorf("declare topology: %w", err)
	}
	log.Info().
		Str("main_queue", cfg.Topology.MainQueue).
		Str("retry_queue", cfg.Topology.RetryQueue).
		Str("dlx_queue", cfg.Topology.DLXQueue).
		Msg("topology declared")

	connClosed := rc.NotifyClose()
	checks["rabbitmq"] = func(context.Context) error {
		if rc.Conn.IsClosed() {
			return amqp.ErrClosed
		}
		return nil
	}

	pubCh := rc.Ch
	if cfg.Rabbit.Confirms {
		if pubCh, err = rc.ConfirmChannel(); err != nil {
			return fmt.Errorf("open confirm channel: %w", err)
		}
	}

	sink := &worker.DeadLetterSink{
		Log:         log.With().Str("component", "dead_letter_sink").Logger(),
		Pub:         rabbit.NewPublisher(pubCh, cfg.Topology.DLXExchange),
		RoutingKey:  cfg.Topology.DLXRoutingKey,
		Queue:       cfg.Topology.DLXQueue,
		GracePeriod: cfg.Retry.GracePeriod,
	}
	if deadLetters != nil {
		sink.Recorder = deadLetters
	}

	scheduler := &worker.RetryScheduler{
		Log:             log.With().Str("component", "retry_scheduler").Logger(),
		RetryPub:        rabbit.NewPublisher(pubCh, cfg.Topology.RetryExchange),
		RetryRoutingKey: cfg.Topology.RetryRoutingKey,
		MainPub:         rabbit.NewPublisher(pubCh, cfg.Topology.MainExchange),
		MainRoutingKey:  cfg.Topology.MainRoutingKey,
		MaxRetries:      cfg.Retry.MaxRetries,
		Backoff:         worker.Backoff{Step: cfg.Retry.BackoffStep, Max: cfg.Retry.BackoffMax},
		Sink:            sink,
	}

	processor := &worker.Processor{
		Log:        log.With().Str("component", "processor").Logger(),
		Handler:    worker.OrderHandler{TimeoutDelay: cfg.Simulation.TimeoutDelay}.Handle,
		Deadline:   cfg.Topology.MainTTL,
		MaxRetries: cfg.Retry.MaxRetries,
		Scheduler:  scheduler,
		Sink:       sink,
		Processed:  processed,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range []struct {
		queue  string
		handle worker.HandleFunc
	}{
		{cfg.Topology.MainQueue, processor.Handle},
		{cfg.Topology.RetryQueue, scheduler.Forward},
		{cfg.Topology.DLXQueue, sink.Observe},
	} {
		deliveries, err := consume(rc, c.queue, cfg.Rabbit.Prefetch, cfg.Common.ServiceName)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.queue, err)
		}
		consumer := &worker.Consumer{
			Log:    log,
			Queue:  c.queue,
			Limit:  cfg.Rabbit.Prefetch,
			Handle: c.handle,
		}
		g.Go(func() error { return consumer.Run(gctx, deliveries) })
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err, ok := <-connClosed:
			if !ok || err == nil {
				return nil
			}
			return fmt.Errorf("rabbit connection closed: %w", err)
		}
	})

	// --- HTTP ---
	h := &apihttp.Handlers{
		Health: (&handlers.HealthHandler{Checks: checks}).ServeHTTP,
	}
	if deadLetters != nil {
		h.DeadLetters = &handlers.DeadLettersHandler{Log: log, Repo: deadLetters}
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apihttp.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown...")

		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		return srv.Shutdown(shCtx)
	})

	log.Info().
		Int("max_retries", cfg.Retry.MaxRetries).
		Int("prefetch", cfg.Rabbit.Prefetch).
		Bool("confirms", cfg.Rabbit.Confirms).
		Msg("worker started")

	return g.Wait()
}

func consume(rc *rabbit.Conn, queue string, prefetch int, tag string) (<-chan amqp.Delivery, error) {
	ch, err := rc.Channel()
	if err != nil {
		return nil, err
	}
	return rabbit.NewConsumer(ch, tag+"."+queue).Consume(queue, prefetch)
}
