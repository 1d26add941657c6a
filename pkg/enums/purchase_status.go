package enums

import "fmt"

// PurchaseStatus maps to the purchase_status enum in Postgres.
type PurchaseStatus string

const (
	PurchaseStatusPending          PurchaseStatus = "pending"
	PurchaseStatusProcessing       PurchaseStatus = "processing"
	PurchaseStatusAwaitingPickup   PurchaseStatus = "awaiting_pickup"
	PurchaseStatusAwaitingDelivery PurchaseStatus = "awaiting_delivery"
	PurchaseStatusOutForDelivery   PurchaseStatus = "out_for_delivery"
	PurchaseStatusCompleted        PurchaseStatus = "completed"
	PurchaseStatusCancelled        PurchaseStatus = "cancelled"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusProcessing,
	PurchaseStatusAwaitingPickup,
	PurchaseStatusAwaitingDelivery,
	PurchaseStatusOutForDelivery,
	PurchaseStatusCompleted,
	PurchaseStatusCancelled,
}

// PendingHandoffStatuses are the statuses an agent may finalize and that a
// buyer's identity token lists as pending.
var PendingHandoffStatuses = []PurchaseStatus{
	PurchaseStatusAwaitingPickup,
	PurchaseStatusAwaitingDelivery,
}

// administrative transitions; completion is reserved for finalize.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPending:          {PurchaseStatusProcessing, PurchaseStatusCancelled},
	PurchaseStatusProcessing:       {PurchaseStatusAwaitingPickup, PurchaseStatusAwaitingDelivery, PurchaseStatusCancelled},
	PurchaseStatusAwaitingPickup:   {PurchaseStatusCancelled},
	PurchaseStatusAwaitingDelivery: {PurchaseStatusOutForDelivery, PurchaseStatusCancelled},
	PurchaseStatusOutForDelivery:   {PurchaseStatusAwaitingDelivery, PurchaseStatusCancelled},
}

// String implements fmt.Stringer.
func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseStatus.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinalizable reports whether an agent may complete a purchase in this status.
func (s PurchaseStatus) IsFinalizable() bool {
	for _, candidate := range PendingHandoffStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusCancelled
}

// CanTransitionTo reports whether an administrative transition from s to next is allowed.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	for _, candidate := range purchaseTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}
