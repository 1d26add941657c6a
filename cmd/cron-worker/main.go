package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agaseke/agaseke-backend/internal/cron"
	"github.com/agaseke/agaseke-backend/internal/identity"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/mailer"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
	"github.com/agaseke/agaseke-backend/pkg/outbox"
	"github.com/agaseke/agaseke-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsRegistry := prometheus.NewRegistry()
	metricsCollector := metrics.NewCronJobMetrics(metricsRegistry)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildJobs(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if !*once && cfg.Cron.MetricsAddr != "" {
		go serveMetrics(ctx, logg, cfg.Cron.MetricsAddr, metricsRegistry)
	}

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	otpService, err := otp.NewService(otp.Deps{
		Repo:     otp.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Mailer:   mailer.New(cfg.Sendgrid, logg),
		Limiter:  redisClient,
		Grants:   redisClient,
		Config:   cfg.OTP,
		Password: cfg.Password,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("otp service: %w", err)
	}
	otpJob, err := cron.NewOTPCleanupJob(cron.OTPCleanupJobParams{
		Logger:    logg,
		Cleaner:   otpService,
		Retention: cfg.OTP.CleanupRetention,
	})
	if err != nil {
		return nil, err
	}

	codec, err := identity.NewCodec(cfg.IdentityToken)
	if err != nil {
		return nil, fmt.Errorf("identity codec: %w", err)
	}
	regenerator, err := identity.NewRegenerator(identity.NewRepository(dbClient.DB()), codec, cfg.IdentityToken, logg)
	if err != nil {
		return nil, fmt.Errorf("identity regenerator: %w", err)
	}
	tokenJob, err := cron.NewIdentityTokenPurgeJob(cron.IdentityTokenPurgeJobParams{
		Logger:    logg,
		Purger:    regenerator,
		Retention: cfg.Cron.IdentityTokenRetention,
	})
	if err != nil {
		return nil, err
	}

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Cron.OutboxRetention,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(otpJob, tokenJob, outboxJob)
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

// serveMetrics exposes job metrics for scraping until ctx is canceled.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string, gatherer prometheus.Gatherer) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "serving cron metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "cron metrics server failed", err)
	}
}
