package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/internal/identity"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

func TestAgentIssueOTPRecordsIssuer(t *testing.T) {
	agentID := uuid.New()
	buyerID := uuid.New()
	svc := &stubOTP{}

	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/otp", `{"buyer_id":"`+buyerID.String()+`"}`), agentID, enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentIssueOTP(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.issued) != 1 {
		t.Fatalf("expected one issue call, got %d", len(svc.issued))
	}
	in := svc.issued[0]
	if in.UserID != buyerID || in.Purpose != enums.OTPPurposePurchaseConfirmation || in.IssuedBy == nil || *in.IssuedBy != agentID {
		t.Fatalf("unexpected issue input %+v", in)
	}
}

func TestAgentIssueOTPSurfacesDeliveryFailure(t *testing.T) {
	svc := &stubOTP{issueErr: pkgerrors.New(pkgerrors.CodeDependency, "could not deliver code")}
	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/otp", `{"buyer_id":"`+uuid.NewString()+`"}`), uuid.New(), enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentIssueOTP(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestAgentVerifyOTPBindsAgent(t *testing.T) {
	agentID := uuid.New()
	buyerID := uuid.New()
	svc := &stubOTP{}

	body := `{"buyer_id":"` + buyerID.String() + `","code":"123456"}`
	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/otp/verify", body), agentID, enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentVerifyOTP(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	in := svc.verified[0]
	if in.UserID != buyerID || in.Code != "123456" || in.AgentID == nil || *in.AgentID != agentID {
		t.Fatalf("unexpected verify input %+v", in)
	}
}

func TestAgentVerifyOTPRejectsWrongCode(t *testing.T) {
	svc := &stubOTP{verifyFn: func(otp.VerifyInput) error {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired code")
	}}
	body := `{"buyer_id":"` + uuid.NewString() + `","code":"000000"}`
	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/otp/verify", body), uuid.New(), enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentVerifyOTP(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAgentFinalizeReportsSplit(t *testing.T) {
	agentID := uuid.New()
	purchaseID := uuid.New()
	svc := stubPurchases{finalizeFn: func(in purchases.FinalizeInput) (*purchases.FinalizeResult, error) {
		if in.PurchaseID != purchaseID || in.AgentID != agentID {
			t.Fatalf("unexpected input %+v", in)
		}
		p := samplePurchase(uuid.New())
		p.ID = purchaseID
		p.Status = enums.PurchaseStatusCompleted
		return &purchases.FinalizeResult{
			Purchase:       p,
			PreviousStatus: enums.PurchaseStatusAwaitingPickup,
			Split: settlement.Split{
				VendorAmount:     decimal.RequireFromString("38000"),
				CommissionAmount: decimal.RequireFromString("2000"),
			},
		}, nil
	}}

	req := asUser(newRequest(http.MethodPost, "/", ""), agentID, enums.UserRoleAgent)
	req = withURLParam(req, "purchaseId", purchaseID.String())
	rec := httptest.NewRecorder()
	AgentFinalize(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp finalizeResponse
	decodeData(t, rec, &resp)
	if !resp.VendorPaymentAmount.Equal(decimal.NewFromInt(38000)) || !resp.CommissionAmount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected split %+v", resp)
	}
	if resp.PreviousStatus != "awaiting_pickup" || resp.Purchase.Status != "completed" {
		t.Fatalf("unexpected statuses %+v", resp)
	}
}

func TestAgentFinalizeInvalidStatus(t *testing.T) {
	svc := stubPurchases{finalizeFn: func(purchases.FinalizeInput) (*purchases.FinalizeResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Invalid status: completed")
	}}
	req := asUser(newRequest(http.MethodPost, "/", ""), uuid.New(), enums.UserRoleAgent)
	req = withURLParam(req, "purchaseId", uuid.NewString())
	rec := httptest.NewRecorder()
	AgentFinalize(svc, nil).ServeHTTP(rec, req)

	if code := errorCode(t, rec); code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict got %s", code)
	}
}

func bulkResultFixture(outcome purchases.BulkOutcome) *purchases.BulkResult {
	buyerID := uuid.New()
	done := samplePurchase(buyerID)
	res := &purchases.BulkResult{BuyerID: buyerID, Outcome: outcome}
	if outcome != purchases.BulkOutcomeNone {
		res.Completed = []purchases.FinalizeResult{{
			Purchase:       done,
			PreviousStatus: enums.PurchaseStatusPending,
			Split: settlement.Split{
				VendorAmount:     decimal.RequireFromString("19000"),
				CommissionAmount: decimal.RequireFromString("1000"),
			},
		}}
		res.TotalVendorPayment = decimal.RequireFromString("19000")
		res.TotalCommission = decimal.RequireFromString("1000")
		res.TotalBuyerPurchaseValue = decimal.RequireFromString("20000")
	}
	if outcome != purchases.BulkOutcomeAll {
		res.Failed = []purchases.BulkFailure{{
			PurchaseID:    uuid.New(),
			OrderID:       "AGS-FAILED01",
			Reason:        "Invalid status: cancelled",
			CurrentStatus: enums.PurchaseStatusCancelled,
			Product:       &models.Product{Title: "Beans 1kg"},
		}}
	}
	return res
}

func TestAgentCompleteBulkStatusCodes(t *testing.T) {
	cases := []struct {
		outcome purchases.BulkOutcome
		status  int
	}{
		{purchases.BulkOutcomeAll, http.StatusOK},
		{purchases.BulkOutcomePartial, http.StatusMultiStatus},
		{purchases.BulkOutcomeNone, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			fixture := bulkResultFixture(tc.outcome)
			svc := stubPurchases{bulkFn: func(in purchases.BulkInput) (*purchases.BulkResult, error) {
				return fixture, nil
			}}
			body := `{"purchase_ids":["` + uuid.NewString() + `","` + uuid.NewString() + `"]}`
			req := asUser(newRequest(http.MethodPost, "/api/v1/agent/purchases/complete", body), uuid.New(), enums.UserRoleAgent)
			rec := httptest.NewRecorder()
			AgentCompleteBulk(svc, nil).ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			var resp bulkResponse
			decodeData(t, rec, &resp)
			if resp.Summary.Outcome != string(tc.outcome) || resp.Summary.TotalRequested != 2 {
				t.Fatalf("unexpected summary %+v", resp.Summary)
			}
			if len(resp.Completed) != len(fixture.Completed) || len(resp.Failed) != len(fixture.Failed) {
				t.Fatalf("unexpected lists %+v", resp)
			}
			if len(resp.Failed) == 1 {
				f := resp.Failed[0]
				if f.Error != "Invalid status: cancelled" || f.CurrentStatus != "cancelled" || f.Product != "Beans 1kg" || f.OrderID != "AGS-FAILED01" {
					t.Fatalf("unexpected failure %+v", f)
				}
			}
		})
	}
}

func TestAgentCompleteBulkRejectsEmptyList(t *testing.T) {
	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/purchases/complete", `{"purchase_ids":[]}`), uuid.New(), enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentCompleteBulk(stubPurchases{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAgentScanReturnsBuyerAndPending(t *testing.T) {
	buyer := models.User{ID: uuid.New(), Username: "mukamana"}
	tokens := &stubIdentity{scan: &identity.ScanResult{
		Buyer:     buyer,
		Pending:   []models.Purchase{samplePurchase(buyer.ID)},
		Stale:     true,
		ExpiresAt: time.Now().Add(time.Hour),
	}}

	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/scan", `{"token":"signed"}`), uuid.New(), enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentScan(tokens, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp scanResponse
	decodeData(t, rec, &resp)
	if resp.Buyer.ID != buyer.ID || len(resp.Pending) != 1 || !resp.Stale {
		t.Fatalf("unexpected scan response %+v", resp)
	}
}

func TestAgentScanRejectsBadToken(t *testing.T) {
	tokens := &stubIdentity{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid identity token")}
	req := asUser(newRequest(http.MethodPost, "/api/v1/agent/scan", `{"token":"forged"}`), uuid.New(), enums.UserRoleAgent)
	rec := httptest.NewRecorder()
	AgentScan(tokens, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAgentBuyerPurchases(t *testing.T) {
	buyerID := uuid.New()
	svc := stubPurchases{pendingFn: func(id uuid.UUID) ([]models.Purchase, error) {
		if id != buyerID {
			t.Fatalf("expected buyer %s got %s", buyerID, id)
		}
		return []models.Purchase{samplePurchase(buyerID), samplePurchase(buyerID)}, nil
	}}
	req := asUser(newRequest(http.MethodGet, "/", ""), uuid.New(), enums.UserRoleAgent)
	req = withURLParam(req, "buyerId", buyerID.String())
	rec := httptest.NewRecorder()
	AgentBuyerPurchases(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp struct {
		Pending []purchaseResponse `json:"pending_purchases"`
	}
	decodeData(t, rec, &resp)
	if len(resp.Pending) != 2 {
		t.Fatalf("expected 2 pending got %d", len(resp.Pending))
	}
}
