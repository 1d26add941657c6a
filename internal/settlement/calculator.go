// Package settlement computes the vendor/commission split recorded when a
// purchase completes.
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const currencyPlaces = 2

var (
	// DefaultVendorShare is the fraction of purchase_price paid to the vendor.
	DefaultVendorShare = decimal.RequireFromString("0.8")
	// DefaultDeliveryFee is the flat fee charged on delivery purchases.
	DefaultDeliveryFee = decimal.RequireFromString("5.00")
)

// Split is the settled outcome for one purchase.
type Split struct {
	VendorAmount     decimal.Decimal
	CommissionAmount decimal.Decimal
}

// Calculator applies the configured vendor share. Construct with New or Default;
// the zero value reports Configured false.
type Calculator struct {
	vendorShare decimal.Decimal
	deliveryFee decimal.Decimal
	configured  bool
}

// New returns a calculator for the given vendor share (0..1) and flat delivery fee.
func New(vendorShare, deliveryFee decimal.Decimal) (Calculator, error) {
	if vendorShare.IsNegative() || vendorShare.GreaterThan(decimal.NewFromInt(1)) {
		return Calculator{}, fmt.Errorf("vendor share %s out of range", vendorShare)
	}
	if deliveryFee.IsNegative() {
		return Calculator{}, fmt.Errorf("delivery fee %s must not be negative", deliveryFee)
	}
	return Calculator{vendorShare: vendorShare, deliveryFee: deliveryFee, configured: true}, nil
}

// Default returns the 80/20 calculator with the 5.00 delivery fee.
func Default() Calculator {
	return Calculator{vendorShare: DefaultVendorShare, deliveryFee: DefaultDeliveryFee, configured: true}
}

// Configured reports whether c came from New or Default.
func (c Calculator) Configured() bool { return c.configured }

// DeliveryFee returns the flat fee charged when the buyer chose delivery.
func (c Calculator) DeliveryFee(delivery bool) decimal.Decimal {
	if !delivery {
		return decimal.Zero
	}
	return c.deliveryFee.Round(currencyPlaces)
}

// Calculate splits purchasePrice between vendor and platform. The delivery fee
// goes entirely to the platform. Intermediate values keep full precision and
// only the outputs are rounded half-up to two places.
func (c Calculator) Calculate(purchasePrice, deliveryFee decimal.Decimal) Split {
	vendor := purchasePrice.Mul(c.vendorShare)
	commission := purchasePrice.Mul(decimal.NewFromInt(1).Sub(c.vendorShare)).Add(deliveryFee)
	return Split{
		VendorAmount:     roundHalfUp(vendor),
		CommissionAmount: roundHalfUp(commission),
	}
}

// roundHalfUp rounds away from zero at the midpoint, which for the
// non-negative amounts handled here is half-up.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(currencyPlaces)
}
