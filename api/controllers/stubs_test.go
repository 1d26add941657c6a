package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/internal/identity"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/pagination"
)

type stubPurchases struct {
	createFn     func(purchases.CreateInput) (*models.Purchase, error)
	finalizeFn   func(purchases.FinalizeInput) (*purchases.FinalizeResult, error)
	bulkFn       func(purchases.BulkInput) (*purchases.BulkResult, error)
	transitionFn func(purchases.TransitionInput) (*purchases.TransitionResult, error)
	listFn       func(uuid.UUID, pagination.Params) (pagination.Page[models.Purchase], error)
	pendingFn    func(uuid.UUID) ([]models.Purchase, error)
}

func (s stubPurchases) Create(ctx context.Context, input purchases.CreateInput) (*models.Purchase, error) {
	return s.createFn(input)
}

func (s stubPurchases) Finalize(ctx context.Context, input purchases.FinalizeInput) (*purchases.FinalizeResult, error) {
	return s.finalizeFn(input)
}

func (s stubPurchases) CompleteBulk(ctx context.Context, input purchases.BulkInput) (*purchases.BulkResult, error) {
	return s.bulkFn(input)
}

func (s stubPurchases) Transition(ctx context.Context, input purchases.TransitionInput) (*purchases.TransitionResult, error) {
	return s.transitionFn(input)
}

func (s stubPurchases) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error) {
	return s.listFn(buyerID, params)
}

func (s stubPurchases) ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error) {
	return s.pendingFn(buyerID)
}

type stubOTP struct {
	issued   []otp.IssueInput
	verified []otp.VerifyInput
	issueErr error
	verifyFn func(otp.VerifyInput) error

	emailIssueFn  func(email string, sessionID *string) (*otp.IssueResult, error)
	emailVerifyFn func(email, code string, sessionID *string) (*models.User, error)
}

func (s *stubOTP) Issue(ctx context.Context, input otp.IssueInput) (*otp.IssueResult, error) {
	s.issued = append(s.issued, input)
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	return &otp.IssueResult{ChallengeID: uuid.New()}, nil
}

func (s *stubOTP) Verify(ctx context.Context, input otp.VerifyInput) error {
	s.verified = append(s.verified, input)
	if s.verifyFn != nil {
		return s.verifyFn(input)
	}
	return nil
}

func (s *stubOTP) IssueForEmail(ctx context.Context, email string, purpose enums.OTPPurpose, sessionID *string) (*otp.IssueResult, error) {
	return s.emailIssueFn(email, sessionID)
}

func (s *stubOTP) VerifyForEmail(ctx context.Context, email, code string, purpose enums.OTPPurpose, sessionID *string) (*models.User, error) {
	return s.emailVerifyFn(email, code, sessionID)
}

type stubIdentity struct {
	token       *models.IdentityToken
	regenerated bool
	scan        *identity.ScanResult
	err         error
}

func (s *stubIdentity) Current(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error) {
	return s.token, s.err
}

func (s *stubIdentity) Regenerate(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error) {
	s.regenerated = true
	return s.token, s.err
}

func (s *stubIdentity) QRCode(token *models.IdentityToken) ([]byte, error) {
	return []byte("png"), nil
}

func (s *stubIdentity) Scan(ctx context.Context, raw string) (*identity.ScanResult, error) {
	return s.scan, s.err
}

func newRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.RouteContext(req.Context())
	if rc == nil {
		rc = chi.NewRouteContext()
	}
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error.Code
}
