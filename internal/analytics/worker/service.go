package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/internal/analytics/router"
	"github.com/agaseke/agaseke-backend/internal/analytics/types"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/outbox"
)

const consumerName = "settlement_analytics"

// Handler processes one decoded purchase event.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type disposition int

const (
	ack disposition = iota
	nack
)

// Service consumes purchase events and hands each one to Handler at most once
// per event id. A handler failure releases the marker and nacks for redelivery.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case manager == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) disposition {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeEnvelope(msg)
	if err != nil {
		// Redelivery cannot fix a malformed message.
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping invalid purchase message")
		return ack
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":    envelope.EventID,
		"event_type":  envelope.EventType,
		"purchase_id": envelope.AggregateID,
		"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "dropping message with non-uuid event id")
		return ack
	}

	seen, err := s.manager.Claim(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return nack
	}
	if seen {
		s.logg.Info(logCtx, "duplicate purchase event skipped")
		return ack
	}

	err = s.handler.Handle(logCtx, envelope)
	switch {
	case err == nil:
		s.logg.Info(logCtx, "purchase event handled")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(logCtx, "unsupported event type")
		return ack
	default:
		s.logg.Error(logCtx, "handler error", err)
		if delErr := s.manager.Release(logCtx, consumerName, eventID); delErr != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", delErr.Error()), "failed to release idempotency marker")
		}
		return nack
	}
}

// decodeEnvelope merges the stored outbox envelope with the routing attributes
// the publisher sets. The envelope's own event id and timestamp win over attributes.
func decodeEnvelope(msg *gcppubsub.Message) (types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	purchaseID, err := uuid.Parse(attr("aggregate_id"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_id: %w", err)
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}

	return types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   purchaseID.String(),
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
