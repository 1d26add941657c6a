package otp

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agaseke/agaseke-backend/internal/repo"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// Repository persists OTP challenges.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	SupersedeUnused(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose) (int64, error)
	Create(ctx context.Context, challenge *models.OTPChallenge) error
	FindUnused(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose, sessionID *string) ([]models.OTPChallenge, error)
	MarkUsed(ctx context.Context, challengeID uuid.UUID, at time.Time) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LockUser loads the user row FOR UPDATE. Concurrent issues for the same user
// queue behind it, so each sees the previous challenge when superseding.
func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SupersedeUnused marks every outstanding challenge for (user, purpose) as used.
func (r *repository) SupersedeUnused(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose) (int64, error) {
	res := r.DB(ctx).Model(&models.OTPChallenge{}).
		Where("user_id = ? AND purpose = ? AND used = ?", userID, purpose, false).
		Update("used", true)
	return res.RowsAffected, res.Error
}

func (r *repository) Create(ctx context.Context, challenge *models.OTPChallenge) error {
	return r.DB(ctx).Create(challenge).Error
}

// FindUnused lists live candidates newest first. A nil sessionID matches any session.
func (r *repository) FindUnused(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose, sessionID *string) ([]models.OTPChallenge, error) {
	q := r.DB(ctx).Where("user_id = ? AND purpose = ? AND used = ?", userID, purpose, false)
	if sessionID != nil {
		q = q.Where("session_id = ?", *sessionID)
	}
	var rows []models.OTPChallenge
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkUsed consumes the challenge only if it is still unused.
func (r *repository) MarkUsed(ctx context.Context, challengeID uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.OTPChallenge{}).
		Where("id = ? AND used = ?", challengeID, false).
		Updates(map[string]any{"used": true, "used_at": at.UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).Where("expires_at < ?", cutoff.UTC()).Delete(&models.OTPChallenge{})
	return res.RowsAffected, res.Error
}
