package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agaseke/agaseke-backend/api/controllers"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/reports"
	pkgAuth "github.com/agaseke/agaseke-backend/pkg/auth"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubPurchases struct {
	purchases.Service
}

func (stubPurchases) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error) {
	return pagination.Page[models.Purchase]{Items: []models.Purchase{}}, nil
}

func (stubPurchases) ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error) {
	return []models.Purchase{}, nil
}

type stubOTP struct{}

func (stubOTP) Issue(ctx context.Context, input otp.IssueInput) (*otp.IssueResult, error) {
	return &otp.IssueResult{ChallengeID: uuid.New()}, nil
}

func (stubOTP) Verify(ctx context.Context, input otp.VerifyInput) error {
	return nil
}

func (stubOTP) IssueForEmail(ctx context.Context, email string, purpose enums.OTPPurpose, sessionID *string) (*otp.IssueResult, error) {
	return &otp.IssueResult{ChallengeID: uuid.New(), SessionID: sessionID}, nil
}

func (stubOTP) VerifyForEmail(ctx context.Context, email, code string, purpose enums.OTPPurpose, sessionID *string) (*models.User, error) {
	return nil, nil
}

type stubReports struct{}

func (stubReports) VendorSales(ctx context.Context, q reports.SalesQuery) (*reports.SalesReport, error) {
	return &reports.SalesReport{From: q.From, To: q.To}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		API: config.APIConfig{CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, Deps{
		Purchases: stubPurchases{},
		OTP:       stubOTP{},
		Reports:   stubReports{},
		Pingers:   map[string]controllers.Pinger{"db": stubPinger{}},
		Gatherer:  prometheus.NewRegistry(),
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig())

	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := serve(router, http.MethodGet, path, "", ""); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	router := newTestRouter(testConfig())
	if resp := serve(router, http.MethodGet, "/metrics", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	if resp := serve(router, http.MethodGet, "/api/v1/purchases", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPurchaseListWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	resp := serve(router, http.MethodGet, "/api/v1/purchases", buildToken(t, cfg, enums.UserRoleUser), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAgentRoutesRequireAgentRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/agent/buyers/" + uuid.NewString() + "/purchases"

	if resp := serve(router, http.MethodGet, target, buildToken(t, cfg, enums.UserRoleUser), ""); resp.Code != http.StatusForbidden {
		t.Fatalf("buyer: expected 403 got %d", resp.Code)
	}
	if resp := serve(router, http.MethodGet, target, buildToken(t, cfg, enums.UserRoleAgent), ""); resp.Code != http.StatusOK {
		t.Fatalf("agent: expected 200 got %d", resp.Code)
	}
}

func TestStaffRoutesRequireStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/staff/purchases/" + uuid.NewString() + "/status"
	resp := serve(router, http.MethodPost, target, buildToken(t, cfg, enums.UserRoleAgent), `{"status":"processing"}`)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestVendorReportsAllowVendorAndStaff(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/vendor/reports/sales"

	for _, role := range []enums.UserRole{enums.UserRoleVendor, enums.UserRoleStaff} {
		if resp := serve(router, http.MethodGet, target, buildToken(t, cfg, role), ""); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", role, resp.Code)
		}
	}
	if resp := serve(router, http.MethodGet, target, buildToken(t, cfg, enums.UserRoleUser), ""); resp.Code != http.StatusForbidden {
		t.Fatalf("buyer: expected 403 got %d", resp.Code)
	}
}

func TestLoginOTPIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := serve(router, http.MethodPost, "/api/v1/auth/otp/", "", `{"email":"buyer@example.com"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAgentOTPResendReissues(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	body := `{"buyer_id":"` + uuid.NewString() + `"}`
	resp := serve(router, http.MethodPost, "/api/v1/agent/otp/resend", buildToken(t, cfg, enums.UserRoleAgent), body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}
