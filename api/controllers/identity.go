package controllers

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

type identityTokenResponse struct {
	Token              string      `json:"token"`
	ExpiresAt          time.Time   `json:"expires_at"`
	PendingPurchaseIDs []uuid.UUID `json:"pending_purchase_ids"`
	QRCode             string      `json:"qr_code_png"`
}

// IdentityTokenCurrent returns the caller's live QR token, minting one when absent or expired.
func IdentityTokenCurrent(tokens IdentityTokens, logg *logger.Logger) http.HandlerFunc {
	return identityTokenHandler(tokens, logg, false)
}

// IdentityTokenRegenerate forces a fresh token for the caller.
func IdentityTokenRegenerate(tokens IdentityTokens, logg *logger.Logger) http.HandlerFunc {
	return identityTokenHandler(tokens, logg, true)
}

func identityTokenHandler(tokens IdentityTokens, logg *logger.Logger, force bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var token *models.IdentityToken
		if force {
			token, err = tokens.Regenerate(r.Context(), buyerID)
		} else {
			token, err = tokens.Current(r.Context(), buyerID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		png, err := tokens.QRCode(token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending := []uuid.UUID(token.PendingPurchaseIDs)
		if pending == nil {
			pending = []uuid.UUID{}
		}
		responses.WriteSuccess(w, identityTokenResponse{
			Token:              token.Token,
			ExpiresAt:          token.ExpiresAt,
			PendingPurchaseIDs: pending,
			QRCode:             base64.StdEncoding.EncodeToString(png),
		})
	}
}
