package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/api/responses"
	"github.com/agaseke/agaseke-backend/api/validators"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/pkg/auth"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// LoginOTP is the email keyed half of the OTP service.
type LoginOTP interface {
	IssueForEmail(ctx context.Context, email string, purpose enums.OTPPurpose, sessionID *string) (*otp.IssueResult, error)
	VerifyForEmail(ctx context.Context, email, code string, purpose enums.OTPPurpose, sessionID *string) (*models.User, error)
}

type loginOTPRequest struct {
	Email     string  `json:"email" validate:"required,email,max=254"`
	SessionID *string `json:"session_id" validate:"omitempty,max=128"`
}

type loginVerifyRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Code      string `json:"code" validate:"required,numeric,min=4,max=10"`
	SessionID string `json:"session_id" validate:"required,max=128"`
}

type loginVerifyResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
}

// AuthOTPIssue emails a login code. The session id binds the code to this
// login attempt and is generated when the client does not supply one.
func AuthOTPIssue(svc LoginOTP, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginOTPRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session := body.SessionID
		if session == nil || *session == "" {
			generated := uuid.NewString()
			session = &generated
		}

		res, err := svc.IssueForEmail(r.Context(), body.Email, enums.OTPPurposeLogin, session)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, otpIssueResponse{
			ChallengeID: res.ChallengeID,
			SessionID:   session,
			ExpiresAt:   res.ExpiresAt,
		})
	}
}

// AuthOTPVerify exchanges a valid login code for an access token.
func AuthOTPVerify(svc LoginOTP, jwtCfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.VerifyForEmail(r.Context(), body.Email, body.Code, enums.OTPPurposeLogin, &body.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		now := time.Now().UTC()
		token, err := auth.MintAccessToken(jwtCfg, now, auth.AccessTokenPayload{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
			JTI:    uuid.NewString(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue access token"))
			return
		}

		w.Header().Set("X-Agaseke-Token", token)
		responses.WriteSuccess(w, loginVerifyResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   now.Add(time.Duration(jwtCfg.ExpirationMinutes) * time.Minute),
			UserID:      user.ID,
			Role:        user.Role.String(),
		})
	}
}
