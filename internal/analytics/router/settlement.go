package router

import (
	"context"
	"fmt"
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/agaseke/agaseke-backend/internal/analytics/types"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/outbox/payloads"
)

type settlementHandler struct {
	writer Writer
	logg   *logger.Logger
	now    func() time.Time
}

func newSettlementHandler(w Writer, logg *logger.Logger) Handler {
	return &settlementHandler{writer: w, logg: logg, now: time.Now}
}

// Handle writes one settlement row when a purchase reaches completed. Other
// transitions are acknowledged without a row.
func (h *settlementHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PurchaseStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"purchase_id": event.PurchaseID.String(),
		"order_id":    event.OrderID,
		"new_status":  event.NewStatus,
	})
	if event.NewStatus != enums.PurchaseStatusCompleted {
		return nil
	}
	if event.VendorPaymentAmount == nil || event.CommissionAmount == nil {
		h.logg.Warn(logCtx, "completed event without settlement amounts")
		return nil
	}

	row := types.SettlementRow{
		EventID:          envelope.EventID,
		PurchaseID:       event.PurchaseID.String(),
		OrderID:          event.OrderID,
		ProductID:        event.ProductID.String(),
		VendorID:         event.VendorID.String(),
		BuyerID:          event.BuyerID.String(),
		PreviousStatus:   string(event.PreviousStatus),
		PurchasePrice:    numeric(event.PurchasePrice),
		DeliveryFee:      numeric(event.DeliveryFee),
		VendorAmount:     numeric(*event.VendorPaymentAmount),
		CommissionAmount: numeric(*event.CommissionAmount),
		CompletedAt:      completedAt(event.ChangedAt, envelope.OccurredAt),
		IngestedAt:       h.now().UTC(),
		Payload:          cbigquery.NullJSON{JSONVal: string(envelope.Payload), Valid: len(envelope.Payload) > 0},
	}
	if event.AgentID != nil {
		row.AgentID = cbigquery.NullString{StringVal: event.AgentID.String(), Valid: true}
	}

	if err := h.writer.InsertSettlement(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert settlement row", err)
		return err
	}
	h.logg.Info(logCtx, "settlement row inserted")
	return nil
}

func numeric(d decimal.Decimal) *big.Rat {
	return d.Round(2).Rat()
}

func completedAt(changedAt, occurredAt time.Time) time.Time {
	if !changedAt.IsZero() {
		return changedAt.UTC()
	}
	return occurredAt.UTC()
}
