package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/pkg/enums"
)

// PurchaseCreatedEvent is emitted once when a buyer checks out. The
// notification service fans it out to the buyer and the vendor.
type PurchaseCreatedEvent struct {
	PurchaseID     uuid.UUID            `json:"purchase_id"`
	OrderID        string               `json:"order_id"`
	ProductID      uuid.UUID            `json:"product_id"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	VendorID       uuid.UUID            `json:"vendor_id"`
	Quantity       int                  `json:"quantity"`
	PurchasePrice  decimal.Decimal      `json:"purchase_price"`
	DeliveryMethod enums.DeliveryMethod `json:"delivery_method"`
	NewStatus      enums.PurchaseStatus `json:"new_status"`
}

// PurchaseStatusChangedEvent is emitted on every status transition, finalize included.
type PurchaseStatusChangedEvent struct {
	PurchaseID          uuid.UUID            `json:"purchase_id"`
	OrderID             string               `json:"order_id"`
	ProductID           uuid.UUID            `json:"product_id"`
	BuyerID             uuid.UUID            `json:"buyer_id"`
	VendorID            uuid.UUID            `json:"vendor_id"`
	PreviousStatus      enums.PurchaseStatus `json:"previous_status"`
	NewStatus           enums.PurchaseStatus `json:"new_status"`
	AgentID             *uuid.UUID           `json:"agent_id,omitempty"`
	PurchasePrice       decimal.Decimal      `json:"purchase_price"`
	DeliveryFee         decimal.Decimal      `json:"delivery_fee"`
	VendorPaymentAmount *decimal.Decimal     `json:"vendor_payment_amount,omitempty"`
	CommissionAmount    *decimal.Decimal     `json:"commission_amount,omitempty"`
	ChangedAt           time.Time            `json:"changed_at"`
}
