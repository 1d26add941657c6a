package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/agaseke/agaseke-backend/internal/analytics/types"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/outbox/payloads"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	env := types.Envelope{
		EventType: enums.OutboxEventType("unsupported"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterRoutesToOverride(t *testing.T) {
	handler := &stubHandler{}
	router, _ := newTestRouter(t, map[enums.OutboxEventType]Handler{
		enums.EventPurchaseCreated: handler,
	})
	data, _ := json.Marshal(payloads.PurchaseCreatedEvent{
		PurchaseID: uuid.New(),
		OrderID:    "ORD-1A2B3C4D",
	})
	env := types.Envelope{EventType: enums.EventPurchaseCreated, Payload: data}
	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handler.called {
		t.Fatalf("handler not invoked")
	}
}

func TestRouterRejectsMalformedPayload(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	err := router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventPurchaseStatusChanged,
		Payload:   []byte(`{"purchase_id":`),
	})
	require.Error(t, err)

	err = router.Handle(context.Background(), types.Envelope{EventType: enums.EventPurchaseStatusChanged})
	require.Error(t, err)
}

func TestSettlementRowWrittenOnCompletion(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	agentID := uuid.New()
	vendorAmount := decimal.RequireFromString("80.00")
	commission := decimal.RequireFromString("25.00")
	changedAt := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	event := payloads.PurchaseStatusChangedEvent{
		PurchaseID:          uuid.New(),
		OrderID:             "ORD-1A2B3C4D",
		ProductID:           uuid.New(),
		BuyerID:             uuid.New(),
		VendorID:            uuid.New(),
		PreviousStatus:      enums.PurchaseStatusAwaitingDelivery,
		NewStatus:           enums.PurchaseStatusCompleted,
		AgentID:             &agentID,
		PurchasePrice:       decimal.RequireFromString("100.00"),
		DeliveryFee:         decimal.RequireFromString("5.00"),
		VendorPaymentAmount: &vendorAmount,
		CommissionAmount:    &commission,
		ChangedAt:           changedAt,
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	err = router.Handle(context.Background(), types.Envelope{
		EventID:   "evt-1",
		EventType: enums.EventPurchaseStatusChanged,
		Payload:   data,
	})
	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)

	row := writer.inserted[0]
	require.Equal(t, "evt-1", row.EventID)
	require.Equal(t, "ORD-1A2B3C4D", row.OrderID)
	require.Equal(t, string(enums.PurchaseStatusAwaitingDelivery), row.PreviousStatus)
	require.True(t, row.AgentID.Valid)
	require.Equal(t, agentID.String(), row.AgentID.StringVal)
	require.Equal(t, "80.00", row.VendorAmount.FloatString(2))
	require.Equal(t, "25.00", row.CommissionAmount.FloatString(2))
	require.Equal(t, "100.00", row.PurchasePrice.FloatString(2))
	require.Equal(t, "5.00", row.DeliveryFee.FloatString(2))
	require.True(t, row.CompletedAt.Equal(changedAt))
	require.True(t, row.Payload.Valid)
}

func TestSettlementSkipsNonTerminalTransitions(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	data, _ := json.Marshal(payloads.PurchaseStatusChangedEvent{
		PurchaseID:     uuid.New(),
		PreviousStatus: enums.PurchaseStatusAwaitingPickup,
		NewStatus:      enums.PurchaseStatusCancelled,
	})
	require.NoError(t, router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventPurchaseStatusChanged,
		Payload:   data,
	}))

	data, _ = json.Marshal(payloads.PurchaseStatusChangedEvent{
		PurchaseID: uuid.New(),
		NewStatus:  enums.PurchaseStatusCompleted,
	})
	require.NoError(t, router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventPurchaseStatusChanged,
		Payload:   data,
	}))
	require.Empty(t, writer.inserted)
}

func TestSettlementPropagatesWriterFailure(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	writer.err = errors.New("bigquery unavailable")
	amount := decimal.RequireFromString("20.00")
	data, _ := json.Marshal(payloads.PurchaseStatusChangedEvent{
		PurchaseID:          uuid.New(),
		NewStatus:           enums.PurchaseStatusCompleted,
		VendorPaymentAmount: &amount,
		CommissionAmount:    &amount,
	})
	err := router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventPurchaseStatusChanged,
		Payload:   data,
	})
	require.ErrorIs(t, err, writer.err)
}

func newTestRouter(t *testing.T, overrides map[enums.OutboxEventType]Handler) (*Router, *fakeWriter) {
	t.Helper()
	writer := &fakeWriter{}
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test"}), overrides)
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

type stubHandler struct {
	called bool
}

func (s *stubHandler) Handle(context.Context, types.Envelope, any) error {
	s.called = true
	return nil
}
