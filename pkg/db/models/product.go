package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog listing a purchase draws from.
type Product struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID       uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null"`
	Title          string              `gorm:"column:title;not null"`
	Price          decimal.NullDecimal `gorm:"column:price;type:numeric(12,2)"`
	Inventory      int                 `gorm:"column:inventory;not null;default:0"`
	TotalPurchases int                 `gorm:"column:total_purchases;not null;default:0"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
