package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// OTPChallenge stores one issued code. Only the argon2id hash of the code is kept.
type OTPChallenge struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID        `gorm:"column:user_id;type:uuid;not null"`
	CodeHash  string           `gorm:"column:code_hash;not null"`
	Purpose   enums.OTPPurpose `gorm:"column:purpose;type:otp_purpose;not null"`
	SessionID *string          `gorm:"column:session_id"`
	IssuedBy  *uuid.UUID       `gorm:"column:issued_by;type:uuid"`
	Used      bool             `gorm:"column:used;not null;default:false"`
	UsedAt    *time.Time       `gorm:"column:used_at"`
	ExpiresAt time.Time        `gorm:"column:expires_at;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (OTPChallenge) TableName() string {
	return "otp_challenges"
}

// IsExpired reports whether the challenge is past its expiry at now.
func (c OTPChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
