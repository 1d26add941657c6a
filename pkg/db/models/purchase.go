package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// Purchase is one buyer's order for a quantity of one product. Rows are never deleted.
type Purchase struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             string               `gorm:"column:order_id;not null;uniqueIndex:purchases_order_id_key"`
	BuyerID             uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null"`
	ProductID           uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	VendorID            uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null"`
	Quantity            int                  `gorm:"column:quantity;not null"`
	PurchasePrice       decimal.Decimal      `gorm:"column:purchase_price;type:numeric(12,2);not null"`
	Status              enums.PurchaseStatus `gorm:"column:status;type:purchase_status;not null"`
	DeliveryMethod      enums.DeliveryMethod `gorm:"column:delivery_method;type:delivery_method;not null"`
	PaymentMethod       enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method;not null"`
	DeliveryFee         decimal.Decimal      `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	DeliveryAddress     *string              `gorm:"column:delivery_address"`
	DeliveryLatitude    *float64             `gorm:"column:delivery_latitude;type:numeric(9,6)"`
	DeliveryLongitude   *float64             `gorm:"column:delivery_longitude;type:numeric(9,6)"`
	AgentID             *uuid.UUID           `gorm:"column:agent_id;type:uuid"`
	PickupConfirmedAt   *time.Time           `gorm:"column:pickup_confirmed_at"`
	VendorPaymentAmount decimal.NullDecimal  `gorm:"column:vendor_payment_amount;type:numeric(12,2)"`
	CommissionAmount    decimal.NullDecimal  `gorm:"column:commission_amount;type:numeric(12,2)"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID;references:ID"`
}

// IsSettled reports whether the settlement split has already been stored.
func (p Purchase) IsSettled() bool {
	return p.VendorPaymentAmount.Valid || p.CommissionAmount.Valid
}
