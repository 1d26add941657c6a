package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agaseke/agaseke-backend/internal/repo"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// Repository persists identity tokens and reads the live purchase state they summarize.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindToken(ctx context.Context, userID uuid.UUID) (*models.IdentityToken, error)
	UpsertToken(ctx context.Context, token *models.IdentityToken) error
	ListPendingPurchases(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error)
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

// FindToken returns nil, nil when the user has no token yet.
func (r *repository) FindToken(ctx context.Context, userID uuid.UUID) (*models.IdentityToken, error) {
	var token models.IdentityToken
	err := r.DB(ctx).Where("user_id = ?", userID).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repository) UpsertToken(ctx context.Context, token *models.IdentityToken) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "pending_purchase_ids", "expires_at", "updated_at"}),
	}).Create(token).Error
}

func (r *repository) ListPendingPurchases(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.DB(ctx).
		Preload("Product").
		Where("buyer_id = ? AND status IN ?", buyerID, enums.PendingHandoffStatuses).
		Order("created_at ASC, id ASC").
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).Where("expires_at < ?", cutoff.UTC()).Delete(&models.IdentityToken{})
	return res.RowsAffected, res.Error
}
