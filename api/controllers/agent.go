package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/api/validators"
	"github.com/agaseke/agaseke-backend/internal/identity"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// IdentityTokens is the identity token surface used by buyer and agent handlers.
type IdentityTokens interface {
	Current(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error)
	Regenerate(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error)
	QRCode(token *models.IdentityToken) ([]byte, error)
	Scan(ctx context.Context, raw string) (*identity.ScanResult, error)
}

// AgentOTP is the OTP surface used at the counter.
type AgentOTP interface {
	Issue(ctx context.Context, input otp.IssueInput) (*otp.IssueResult, error)
	Verify(ctx context.Context, input otp.VerifyInput) error
}

type agentOTPRequest struct {
	BuyerID uuid.UUID `json:"buyer_id" validate:"required"`
}

type agentVerifyRequest struct {
	BuyerID uuid.UUID `json:"buyer_id" validate:"required"`
	Code    string    `json:"code" validate:"required,numeric,min=4,max=10"`
}

type otpIssueResponse struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	SessionID   *string   `json:"session_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AgentIssueOTP emails a purchase confirmation code to the buyer standing at the counter.
// A repeated call supersedes the outstanding code, which doubles as the resend path.
func AgentIssueOTP(svc AgentOTP, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body agentOTPRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.Issue(r.Context(), otp.IssueInput{
			UserID:   body.BuyerID,
			Purpose:  enums.OTPPurposePurchaseConfirmation,
			IssuedBy: &agentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, otpIssueResponse{
			ChallengeID: res.ChallengeID,
			ExpiresAt:   res.ExpiresAt,
		})
	}
}

// AgentVerifyOTP checks the buyer's code and records the handoff grant for this agent.
func AgentVerifyOTP(svc AgentOTP, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body agentVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Verify(r.Context(), otp.VerifyInput{
			UserID:  body.BuyerID,
			Code:    body.Code,
			Purpose: enums.OTPPurposePurchaseConfirmation,
			AgentID: &agentID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"verified": true,
			"buyer_id": body.BuyerID,
		})
	}
}

type finalizeResponse struct {
	Purchase            purchaseResponse `json:"purchase"`
	PreviousStatus      string           `json:"previous_status"`
	VendorPaymentAmount decimal.Decimal  `json:"vendor_payment_amount"`
	CommissionAmount    decimal.Decimal  `json:"commission_amount"`
}

// AgentFinalize completes one purchase and reports the settlement split.
func AgentFinalize(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purchaseID, err := validators.ParseURLUUID(r, "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.Finalize(r.Context(), purchases.FinalizeInput{PurchaseID: purchaseID, AgentID: agentID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, finalizeResponse{
			Purchase:            newPurchaseResponse(res.Purchase),
			PreviousStatus:      string(res.PreviousStatus),
			VendorPaymentAmount: res.Split.VendorAmount,
			CommissionAmount:    res.Split.CommissionAmount,
		})
	}
}

type bulkRequest struct {
	PurchaseIDs []uuid.UUID `json:"purchase_ids" validate:"required,min=1,max=100"`
}

type bulkCompleted struct {
	PurchaseID          uuid.UUID       `json:"purchase_id"`
	OrderID             string          `json:"order_id"`
	PreviousStatus      string          `json:"previous_status"`
	VendorPaymentAmount decimal.Decimal `json:"vendor_payment_amount"`
	CommissionAmount    decimal.Decimal `json:"commission_amount"`
}

type bulkFailed struct {
	PurchaseID    uuid.UUID `json:"purchase_id"`
	OrderID       string    `json:"order_id,omitempty"`
	Error         string    `json:"error"`
	CurrentStatus string    `json:"current_status,omitempty"`
	Product       string    `json:"product,omitempty"`
}

type bulkSummary struct {
	Outcome                 string          `json:"outcome"`
	TotalRequested          int             `json:"total_requested"`
	TotalCompleted          int             `json:"total_completed"`
	TotalFailed             int             `json:"total_failed"`
	TotalVendorPayment      decimal.Decimal `json:"total_vendor_payment"`
	TotalCommission         decimal.Decimal `json:"total_commission"`
	TotalBuyerPurchaseValue decimal.Decimal `json:"total_buyer_purchase_value"`
}

type bulkResponse struct {
	BuyerID   uuid.UUID       `json:"buyer_id"`
	Completed []bulkCompleted `json:"completed"`
	Failed    []bulkFailed    `json:"failed"`
	Summary   bulkSummary     `json:"summary"`
}

// AgentCompleteBulk finalizes several purchases of one buyer. The status code
// carries the outcome: 200 all completed, 207 partial, 400 none.
func AgentCompleteBulk(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body bulkRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.CompleteBulk(r.Context(), purchases.BulkInput{PurchaseIDs: body.PurchaseIDs, AgentID: agentID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, bulkStatus(res.Outcome), newBulkResponse(res, len(body.PurchaseIDs)))
	}
}

func bulkStatus(outcome purchases.BulkOutcome) int {
	switch outcome {
	case purchases.BulkOutcomeAll:
		return http.StatusOK
	case purchases.BulkOutcomePartial:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

func newBulkResponse(res *purchases.BulkResult, requested int) bulkResponse {
	out := bulkResponse{
		BuyerID:   res.BuyerID,
		Completed: make([]bulkCompleted, 0, len(res.Completed)),
		Failed:    make([]bulkFailed, 0, len(res.Failed)),
		Summary: bulkSummary{
			Outcome:                 string(res.Outcome),
			TotalRequested:          requested,
			TotalCompleted:          len(res.Completed),
			TotalFailed:             len(res.Failed),
			TotalVendorPayment:      res.TotalVendorPayment,
			TotalCommission:         res.TotalCommission,
			TotalBuyerPurchaseValue: res.TotalBuyerPurchaseValue,
		},
	}
	for _, c := range res.Completed {
		out.Completed = append(out.Completed, bulkCompleted{
			PurchaseID:          c.Purchase.ID,
			OrderID:             c.Purchase.OrderID,
			PreviousStatus:      string(c.PreviousStatus),
			VendorPaymentAmount: c.Split.VendorAmount,
			CommissionAmount:    c.Split.CommissionAmount,
		})
	}
	for _, f := range res.Failed {
		item := bulkFailed{
			PurchaseID:    f.PurchaseID,
			OrderID:       f.OrderID,
			Error:         f.Reason,
			CurrentStatus: string(f.CurrentStatus),
		}
		if f.Product != nil {
			item.Product = f.Product.Title
		}
		out.Failed = append(out.Failed, item)
	}
	return out
}

type scanRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

type scanResponse struct {
	Buyer     buyerSummary       `json:"buyer"`
	Pending   []purchaseResponse `json:"pending_purchases"`
	Stale     bool               `json:"stale"`
	ExpiresAt time.Time          `json:"expires_at"`
}

type buyerSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	FullName *string   `json:"full_name,omitempty"`
}

// AgentScan resolves a scanned QR token to the buyer and their live pending purchases.
func AgentScan(tokens IdentityTokens, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body scanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := tokens.Scan(r.Context(), body.Token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, scanResponse{
			Buyer: buyerSummary{
				ID:       res.Buyer.ID,
				Username: res.Buyer.Username,
				FullName: res.Buyer.FullName,
			},
			Pending:   newPurchaseResponses(res.Pending),
			Stale:     res.Stale,
			ExpiresAt: res.ExpiresAt,
		})
	}
}

// AgentBuyerPurchases lists a buyer's purchases awaiting handoff.
func AgentBuyerPurchases(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := validators.ParseURLUUID(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListPending(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"buyer_id":          buyerID,
			"pending_purchases": newPurchaseResponses(rows),
		})
	}
}
