package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/agaseke/agaseke-backend/internal/analytics/router"
	"github.com/agaseke/agaseke-backend/internal/analytics/types"
	"github.com/agaseke/agaseke-backend/internal/analytics/worker"
	"github.com/agaseke/agaseke-backend/internal/analytics/writer"
	"github.com/agaseke/agaseke-backend/pkg/bigquery"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/outbox/idempotency"
	"github.com/agaseke/agaseke-backend/pkg/pubsub"
	"github.com/agaseke/agaseke-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped cleanly")
}

// run wires the settlement consumer and blocks until ctx ends. Clients are
// closed in reverse order of creation.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	closers = append(closers, redisClient)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleSubscriber, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	closers = append(closers, pubsubClient)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	closers = append(closers, bqClient)

	columns, err := types.SettlementColumns()
	if err != nil {
		return fmt.Errorf("settlement schema: %w", err)
	}
	if err := bqClient.EnsureColumns(ctx, columns); err != nil {
		return err
	}

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}
	markers, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	sink, err := writer.New(bqClient, writer.DefaultRetryPolicy)
	if err != nil {
		return fmt.Errorf("settlement writer: %w", err)
	}
	handler, err := router.NewRouter(sink, logg, nil)
	if err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	service, err := worker.NewService(subscription, handler, markers, logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "analytics worker ready")
	return service.Run(ctx)
}
