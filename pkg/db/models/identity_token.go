package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/agaseke/agaseke-backend/pkg/db/types"
)

// IdentityToken holds the single live QR token for a buyer.
type IdentityToken struct {
	UserID             uuid.UUID         `gorm:"column:user_id;type:uuid;primaryKey"`
	Token              string            `gorm:"column:token;not null"`
	PendingPurchaseIDs dbtypes.UUIDArray `gorm:"column:pending_purchase_ids;type:uuid[];not null;default:'{}'"`
	ExpiresAt          time.Time         `gorm:"column:expires_at;not null"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the token is past its expiry at now.
func (t IdentityToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
