package enums

import "slices"

// DeliveryMethod describes how purchased goods reach the buyer.
type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "pickup"
	DeliveryMethodDelivery DeliveryMethod = "delivery"
)

var deliveryMethods = []DeliveryMethod{DeliveryMethodPickup, DeliveryMethodDelivery}

func (d DeliveryMethod) String() string { return string(d) }

func (d DeliveryMethod) IsValid() bool { return slices.Contains(deliveryMethods, d) }

// InitialStatus is the status a freshly created purchase starts in.
func (d DeliveryMethod) InitialStatus() PurchaseStatus {
	if d == DeliveryMethodDelivery {
		return PurchaseStatusAwaitingDelivery
	}
	return PurchaseStatusAwaitingPickup
}

func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	return parse("delivery method", value, deliveryMethods)
}
