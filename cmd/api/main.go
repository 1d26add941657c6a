package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agaseke/agaseke-backend/api/controllers"
	"github.com/agaseke/agaseke-backend/api/routes"
	"github.com/agaseke/agaseke-backend/internal/identity"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/reports"
	"github.com/agaseke/agaseke-backend/internal/settlement"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	purchaseMetrics := metrics.NewPurchaseMetrics(registry)

	codec, err := identity.NewCodec(cfg.IdentityToken)
	if err != nil {
		logg.Error(ctx, "failed to create identity codec", err)
		os.Exit(1)
	}
	regenerator, err := identity.NewRegenerator(identity.NewRepository(dbClient.DB()), codec, cfg.IdentityToken, logg)
	if err != nil {
		logg.Error(ctx, "failed to create identity regenerator", err)
		os.Exit(1)
	}

	otpService, err := otp.NewService(otp.Deps{
		Repo:     otp.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Mailer:   mailer.New(cfg.Sendgrid, logg),
		Limiter:  redisClient,
		Grants:   redisClient,
		Config:   cfg.OTP,
		Password: cfg.Password,
		Metrics:  purchaseMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create otp service", err)
		os.Exit(1)
	}

	calculator, err := settlement.New(cfg.Settlement.VendorShareDecimal(), cfg.Settlement.DeliveryFeeDecimal())
	if err != nil {
		logg.Error(ctx, "failed to create settlement calculator", err)
		os.Exit(1)
	}

	var gate purchases.HandoffGate
	if cfg.FeatureFlags.RequireOTPGrant {
		gate = otp.NewGrantGate(otpService)
	}

	purchaseService, err := purchases.NewService(purchases.Deps{
		Repo:        purchases.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Outbox:      outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Regenerator: regenerator,
		Gate:        gate,
		Calculator:  calculator,
		Metrics:     purchaseMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create purchase service", err)
		os.Exit(1)
	}

	reportService, err := reports.NewService(reports.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create report service", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		Purchases: purchaseService,
		OTP:       otpService,
		Identity:  regenerator,
		Reports:   reportService,
		Redis:     redisClient,
		Pingers: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Gatherer: registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(logCtx, "api server stopped")
}
