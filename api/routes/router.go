package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agaseke/agaseke-backend/api/controllers"
	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/reports"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// RedisStore covers the redis features used by the HTTP layer.
type RedisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// OTPService is the OTP surface exposed over HTTP.
type OTPService interface {
	controllers.AgentOTP
	controllers.LoginOTP
}

// Deps carries the services mounted by NewRouter. A nil Redis disables
// idempotency replay and rate limiting.
type Deps struct {
	Purchases purchases.Service
	OTP       OTPService
	Identity  controllers.IdentityTokens
	Reports   reports.Service
	Redis     RedisStore
	Pingers   map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	loginPolicy := middleware.NewRateLimitPolicy(
		"login_otp",
		cfg.API.LoginOTPWindow,
		cfg.API.LoginOTPIPLimit,
		cfg.API.LoginOTPEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/auth/otp", func(r chi.Router) {
		r.Use(middleware.RateLimit(loginPolicy, deps.Redis, logg))
		r.Post("/", controllers.AuthOTPIssue(deps.OTP, logg))
		r.Post("/verify", controllers.AuthOTPVerify(deps.OTP, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", controllers.PurchaseCreate(deps.Purchases, logg))
			r.Get("/", controllers.PurchaseList(deps.Purchases, logg))
		})

		r.Route("/me/identity-token", func(r chi.Router) {
			r.Get("/", controllers.IdentityTokenCurrent(deps.Identity, logg))
			r.Post("/", controllers.IdentityTokenRegenerate(deps.Identity, logg))
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAgent))
			r.Post("/otp", controllers.AgentIssueOTP(deps.OTP, logg))
			r.Post("/otp/resend", controllers.AgentIssueOTP(deps.OTP, logg))
			r.Post("/otp/verify", controllers.AgentVerifyOTP(deps.OTP, logg))
			r.Post("/scan", controllers.AgentScan(deps.Identity, logg))
			r.Get("/buyers/{buyerId}/purchases", controllers.AgentBuyerPurchases(deps.Purchases, logg))
			r.Post("/purchases/{purchaseId}/finalize", controllers.AgentFinalize(deps.Purchases, logg))
			r.Post("/purchases/complete", controllers.AgentCompleteBulk(deps.Purchases, logg))
		})

		r.Route("/vendor/reports", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleVendor, enums.UserRoleStaff))
			r.Get("/sales", controllers.VendorSalesReport(deps.Reports, logg))
		})

		r.Route("/staff", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleStaff))
			r.Post("/purchases/{purchaseId}/status", controllers.StaffTransition(deps.Purchases, logg))
		})
	})

	return r
}
