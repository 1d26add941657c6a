// Package otp issues and verifies the one-time codes that gate purchase handoff and login.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/mailer"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/security"
)

const (
	resultOK       = metrics.OTPResultOK
	resultNotFound = metrics.OTPResultNotFound
	resultExpired  = metrics.OTPResultExpired
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RateLimiter is the fixed-window counter used to throttle issuance.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// GrantStore records that an agent verified a buyer's purchase code.
type GrantStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	OTPGrantKey(agentID, buyerID string) string
}

// Service issues and verifies OTP challenges.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*IssueResult, error)
	IssueForEmail(ctx context.Context, email string, purpose enums.OTPPurpose, sessionID *string) (*IssueResult, error)
	Verify(ctx context.Context, input VerifyInput) error
	VerifyForEmail(ctx context.Context, email, code string, purpose enums.OTPPurpose, sessionID *string) (*models.User, error)
	HasGrant(ctx context.Context, agentID, buyerID uuid.UUID) (bool, error)
	CleanupExpired(ctx context.Context, retention time.Duration) (int64, error)
}

type IssueInput struct {
	UserID    uuid.UUID
	Purpose   enums.OTPPurpose
	SessionID *string
	IssuedBy  *uuid.UUID
}

type IssueResult struct {
	ChallengeID uuid.UUID
	SessionID   *string
	ExpiresAt   time.Time
	Superseded  int64
}

// VerifyInput carries the code to check. AgentID, when set on a purchase
// confirmation, receives the finalize grant for UserID.
type VerifyInput struct {
	UserID    uuid.UUID
	Code      string
	Purpose   enums.OTPPurpose
	SessionID *string
	AgentID   *uuid.UUID
}

type Deps struct {
	Repo     Repository
	Tx       txRunner
	Mailer   mailer.Sender
	Limiter  RateLimiter
	Grants   GrantStore
	Config   config.OTPConfig
	Password config.PasswordConfig
	Metrics  *metrics.PurchaseMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	mail     mailer.Sender
	limiter  RateLimiter
	grants   GrantStore
	cfg      config.OTPConfig
	password config.PasswordConfig
	metrics  *metrics.PurchaseMetrics
	logg     *logger.Logger
	now      func() time.Time
	newCode  func(length int) (string, error)
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("otp repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if deps.Config.TTL <= 0 {
		return nil, fmt.Errorf("otp ttl must be positive")
	}
	if deps.Config.CodeLength <= 0 {
		deps.Config.CodeLength = 6
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{
		repo:     deps.Repo,
		tx:       deps.Tx,
		mail:     deps.Mailer,
		limiter:  deps.Limiter,
		grants:   deps.Grants,
		cfg:      deps.Config,
		password: deps.Password,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		newCode:  security.GenerateNumericCode,
	}, nil
}

// Issue supersedes any outstanding challenge for (user, purpose), stores a new one
// and emails the code. When the email fails the new challenge stays live and a
// DispatchError is returned.
func (s *service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Purpose.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown otp purpose").
			WithDetails(map[string]any{"field": "purpose"})
	}
	if err := s.checkRate(ctx, input.UserID, input.Purpose); err != nil {
		return nil, err
	}

	code, err := s.newCode(s.cfg.CodeLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp")
	}
	hash, err := security.HashCode(code, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash otp")
	}

	sessionID := input.SessionID
	if sessionID == nil && input.Purpose.RequiresSession() {
		generated := uuid.NewString()
		sessionID = &generated
	}

	var (
		user       *models.User
		challenge  models.OTPChallenge
		superseded int64
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		user, err = repo.LockUser(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		superseded, err = repo.SupersedeUnused(ctx, input.UserID, input.Purpose)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "supersede otp")
		}
		now := s.now()
		challenge = models.OTPChallenge{
			ID:        uuid.New(),
			UserID:    input.UserID,
			CodeHash:  hash,
			Purpose:   input.Purpose,
			SessionID: sessionID,
			IssuedBy:  input.IssuedBy,
			ExpiresAt: now.Add(s.cfg.TTL),
			CreatedAt: now,
		}
		if err := repo.Create(ctx, &challenge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store otp")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOTPIssued(string(input.Purpose))

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, input.UserID.String()), map[string]any{
		"challenge_id": challenge.ID.String(),
		"purpose":      input.Purpose,
		"superseded":   superseded,
	})

	msg, err := buildMessage(user, code, input.Purpose, s.cfg.TTL)
	if err == nil {
		err = s.mail.Send(ctx, msg)
	}
	if err != nil {
		s.logg.Error(logCtx, "otp dispatch failed", err)
		return nil, dispatchFailed(challenge.ID, err)
	}
	s.logg.Info(logCtx, "otp issued")

	return &IssueResult{
		ChallengeID: challenge.ID,
		SessionID:   sessionID,
		ExpiresAt:   challenge.ExpiresAt,
		Superseded:  superseded,
	}, nil
}

func (s *service) IssueForEmail(ctx context.Context, email string, purpose enums.OTPPurpose, sessionID *string) (*IssueResult, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.Issue(ctx, IssueInput{UserID: user.ID, Purpose: purpose, SessionID: sessionID})
}

// Verify consumes the live challenge matching the code. An expired match is left
// unused so cleanup can remove it later.
func (s *service) Verify(ctx context.Context, input VerifyInput) error {
	if input.UserID == uuid.Nil || input.Code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and code required")
	}
	if !input.Purpose.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown otp purpose").
			WithDetails(map[string]any{"field": "purpose"})
	}

	candidates, err := s.repo.FindUnused(ctx, input.UserID, input.Purpose, input.SessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load otp")
	}
	var match *models.OTPChallenge
	for i := range candidates {
		ok, err := security.VerifyCode(input.Code, candidates[i].CodeHash)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "challenge_id", candidates[i].ID.String()), "otp hash unreadable")
			continue
		}
		if ok {
			match = &candidates[i]
			break
		}
	}

	now := s.now()
	switch {
	case match == nil:
		s.metrics.IncOTPVerification(resultNotFound)
		return verifyFailed(ReasonNotFound)
	case match.IsExpired(now):
		s.metrics.IncOTPVerification(resultExpired)
		return verifyFailed(ReasonExpired)
	}

	consumed, err := s.repo.MarkUsed(ctx, match.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume otp")
	}
	if !consumed {
		s.metrics.IncOTPVerification(resultNotFound)
		return verifyFailed(ReasonNotFound)
	}
	s.metrics.IncOTPVerification(resultOK)

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, input.UserID.String()), map[string]any{
		"challenge_id": match.ID.String(),
		"purpose":      input.Purpose,
	})
	s.logg.Info(logCtx, "otp verified")

	if input.Purpose == enums.OTPPurposePurchaseConfirmation && input.AgentID != nil && s.grants != nil {
		key := s.grants.OTPGrantKey(input.AgentID.String(), input.UserID.String())
		if err := s.grants.Set(ctx, key, match.ID.String(), s.cfg.GrantTTL); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record verification grant")
		}
	}
	return nil
}

func (s *service) VerifyForEmail(ctx context.Context, email, code string, purpose enums.OTPPurpose, sessionID *string) (*models.User, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		// unknown emails look like a wrong code
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, verifyFailed(ReasonNotFound)
		}
		return nil, err
	}
	if err := s.Verify(ctx, VerifyInput{UserID: user.ID, Code: code, Purpose: purpose, SessionID: sessionID}); err != nil {
		return nil, err
	}
	return user, nil
}

// HasGrant reports whether agentID verified buyerID's purchase code within the grant TTL.
func (s *service) HasGrant(ctx context.Context, agentID, buyerID uuid.UUID) (bool, error) {
	if s.grants == nil {
		return false, nil
	}
	ok, err := s.grants.Exists(ctx, s.grants.OTPGrantKey(agentID.String(), buyerID.String()))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check verification grant")
	}
	return ok, nil
}

// CleanupExpired deletes challenges whose expiry is older than retention.
func (s *service) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	n, err := s.repo.DeleteExpiredBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("delete expired otp challenges: %w", err)
	}
	return n, nil
}

func (s *service) checkRate(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose) error {
	if s.limiter == nil || s.cfg.IssueLimit <= 0 || s.cfg.IssueWindow <= 0 {
		return nil
	}
	scope := fmt.Sprintf("otp_issue:%s:%s", purpose, userID)
	allowed, count, err := s.limiter.FixedWindowAllow(ctx, scope, int64(s.cfg.IssueLimit), s.cfg.IssueWindow)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting")
	}
	if !allowed {
		logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
			"purpose":  purpose,
			"attempts": count,
			"limit":    s.cfg.IssueLimit,
		})
		s.logg.Warn(logCtx, "otp.rate_limit.blocked")
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many verification codes requested")
	}
	return nil
}

func (s *service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required").
			WithDetails(map[string]any{"field": "email"})
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}
