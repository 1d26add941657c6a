package purchases

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

// OwnProductError rejects a vendor buying their own listing.
type OwnProductError struct {
	ProductID uuid.UUID
}

func (e *OwnProductError) Error() string {
	return "cannot purchase your own product"
}

// NoPriceError rejects products listed without a price.
type NoPriceError struct {
	ProductID uuid.UUID
}

func (e *NoPriceError) Error() string {
	return "product has no price"
}

// OutOfStockError reports inventory below the requested quantity.
type OutOfStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient inventory: requested %d, available %d", e.Requested, e.Available)
}

// MissingAddressError rejects delivery purchases without an address.
type MissingAddressError struct{}

func (e *MissingAddressError) Error() string {
	return "delivery address is required for delivery"
}

// InvalidStatusError carries the purchase's actual status so callers can explain the refusal.
type InvalidStatusError struct {
	PurchaseID uuid.UUID
	Current    enums.PurchaseStatus
}

func (e *InvalidStatusError) Error() string {
	return "Invalid status: " + string(e.Current)
}

// MixedBuyerError rejects a bulk request spanning more than one buyer.
type MixedBuyerError struct {
	BuyerIDs []uuid.UUID
}

func (e *MixedBuyerError) Error() string {
	ids := make([]string, 0, len(e.BuyerIDs))
	for _, id := range e.BuyerIDs {
		ids = append(ids, id.String())
	}
	return "all purchases must belong to the same buyer (got " + strings.Join(ids, ", ") + ")"
}

func ownProduct(productID uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, &OwnProductError{ProductID: productID}, "cannot purchase your own product").
		WithDetails(map[string]any{"product_id": productID})
}

func noPrice(productID uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, &NoPriceError{ProductID: productID}, "product has no price").
		WithDetails(map[string]any{"product_id": productID})
}

func outOfStock(productID uuid.UUID, requested, available int) error {
	e := &OutOfStockError{ProductID: productID, Requested: requested, Available: available}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, e, e.Error()).
		WithDetails(map[string]any{"product_id": productID, "requested": requested, "available": available})
}

func missingAddress() error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, &MissingAddressError{}, "delivery address is required for delivery").
		WithDetails(map[string]any{"field": "delivery_address"})
}

func invalidStatus(purchaseID uuid.UUID, current enums.PurchaseStatus) error {
	e := &InvalidStatusError{PurchaseID: purchaseID, Current: current}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, e, e.Error()).
		WithDetails(map[string]any{"purchase_id": purchaseID, "current_status": current})
}

func mixedBuyers(buyerIDs []uuid.UUID) error {
	e := &MixedBuyerError{BuyerIDs: buyerIDs}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, e, "all purchases must belong to the same buyer").
		WithDetails(map[string]any{"buyer_ids": buyerIDs})
}
