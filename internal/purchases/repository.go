package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/internal/repo"
	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/pagination"
)

// Repository defines persistence for purchases and the product/user counters they move.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	DecrementInventory(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	RestoreInventory(ctx context.Context, productID uuid.UUID, qty int) error
	CreatePurchase(ctx context.Context, purchase *models.Purchase) error
	FindPurchase(ctx context.Context, purchaseID uuid.UUID) (*models.Purchase, error)
	FindPurchases(ctx context.Context, purchaseIDs []uuid.UUID) ([]models.Purchase, error)
	CompletePurchase(ctx context.Context, purchaseID uuid.UUID, from enums.PurchaseStatus, agentID uuid.UUID, at time.Time, split settlement.Split) (bool, error)
	UpdateStatus(ctx context.Context, purchaseID uuid.UUID, from, to enums.PurchaseStatus) (bool, error)
	AddVendorSales(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) error
	AddBuyerPurchases(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal) error
	ListBuyerPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error)
	ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error)
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

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementInventory removes qty from stock only if enough remains, in one statement.
// It reports false when the floor would be crossed.
func (r *repository) DecrementInventory(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.DB(ctx).Model(&models.Product{}).
		Where("id = ? AND inventory >= ?", productID, qty).
		Updates(map[string]any{
			"inventory":       gorm.Expr("inventory - ?", qty),
			"total_purchases": gorm.Expr("total_purchases + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RestoreInventory(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.DB(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"inventory":       gorm.Expr("inventory + ?", qty),
			"total_purchases": gorm.Expr("CASE WHEN total_purchases > 0 THEN total_purchases - 1 ELSE 0 END"),
		}).Error
}

func (r *repository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.DB(ctx).Omit("Product").Create(purchase).Error
}

func (r *repository) FindPurchase(ctx context.Context, purchaseID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.DB(ctx).Preload("Product").Where("id = ?", purchaseID).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindPurchases(ctx context.Context, purchaseIDs []uuid.UUID) ([]models.Purchase, error) {
	if len(purchaseIDs) == 0 {
		return nil, nil
	}
	var purchases []models.Purchase
	if err := r.DB(ctx).Preload("Product").Where("id IN ?", purchaseIDs).Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// CompletePurchase moves the purchase from `from` to completed and stores the split.
// The guard on status and an unset split makes a concurrent second finalize a no-op.
func (r *repository) CompletePurchase(ctx context.Context, purchaseID uuid.UUID, from enums.PurchaseStatus, agentID uuid.UUID, at time.Time, split settlement.Split) (bool, error) {
	res := r.DB(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ? AND vendor_payment_amount IS NULL AND commission_amount IS NULL", purchaseID, from).
		Updates(map[string]any{
			"status":                enums.PurchaseStatusCompleted,
			"agent_id":              agentID,
			"pickup_confirmed_at":   at,
			"vendor_payment_amount": split.VendorAmount,
			"commission_amount":     split.CommissionAmount,
			"updated_at":            at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateStatus(ctx context.Context, purchaseID uuid.UUID, from, to enums.PurchaseStatus) (bool, error) {
	res := r.DB(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", purchaseID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AddVendorSales(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) error {
	return r.addToUser(ctx, vendorID, "total_sales", amount)
}

func (r *repository) AddBuyerPurchases(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal) error {
	return r.addToUser(ctx, buyerID, "total_purchases", amount)
}

func (r *repository) addToUser(ctx context.Context, userID uuid.UUID, column string, amount decimal.Decimal) error {
	res := r.DB(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListBuyerPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error) {
	query, err := pagination.Seek(r.DB(ctx).Preload("Product").Where("buyer_id = ?", buyerID), params)
	if err != nil {
		return pagination.Page[models.Purchase]{}, err
	}
	var rows []models.Purchase
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.Purchase]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(p models.Purchase) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

func (r *repository) ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.DB(ctx).Preload("Product").
		Where("buyer_id = ? AND status IN ?", buyerID, enums.PendingHandoffStatuses).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
