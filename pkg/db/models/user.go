package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// User is the account row owned by the account service. The purchase engine
// reads identity fields and mutates only the running totals.
type User struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email          string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	Username       string          `gorm:"column:username;not null"`
	FullName       *string         `gorm:"column:full_name"`
	Role           enums.UserRole  `gorm:"column:role;type:user_role;not null;default:'user'"`
	TotalSales     decimal.Decimal `gorm:"column:total_sales;type:numeric(12,2);not null;default:0"`
	TotalPurchases decimal.Decimal `gorm:"column:total_purchases;type:numeric(12,2);not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
