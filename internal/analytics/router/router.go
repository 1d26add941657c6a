package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agaseke/agaseke-backend/internal/analytics/types"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	outboxpayloads "github.com/agaseke/agaseke-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertSettlement(ctx context.Context, row types.SettlementRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type handlerEntry struct {
	factory func() any
	handler Handler
}

// Router dispatches purchase envelopes to the configured handler per event type.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	entries := map[enums.OutboxEventType]handlerEntry{
		enums.EventPurchaseCreated: {
			factory: func() any { return &outboxpayloads.PurchaseCreatedEvent{} },
			handler: skipHandler{logg: logg},
		},
		enums.EventPurchaseStatusChanged: {
			factory: func() any { return &outboxpayloads.PurchaseStatusChangedEvent{} },
			handler: newSettlementHandler(writer, logg),
		},
	}

	for event, custom := range overrides {
		entry, ok := entries[event]
		if !ok || custom == nil {
			continue
		}
		entry.handler = custom
		entries[event] = entry
	}

	return &Router{
		handlers: entries,
		logg:     logg,
	}, nil
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload := entry.factory()
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	return entry.handler.Handle(ctx, envelope, payload)
}

// skipHandler acknowledges events that carry no settlement data.
type skipHandler struct {
	logg *logger.Logger
}

func (h skipHandler) Handle(ctx context.Context, envelope types.Envelope, _ any) error {
	h.logg.Debug(h.logg.WithField(ctx, "event_type", envelope.EventType), "no settlement row for event")
	return nil
}
