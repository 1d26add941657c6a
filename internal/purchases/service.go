package purchases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/outbox"
	"github.com/agaseke/agaseke-backend/pkg/outbox/payloads"
	"github.com/agaseke/agaseke-backend/pkg/pagination"
)

const orderIDConstraint = "purchases_order_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// TokenRegenerator rebuilds a buyer's identity token after their pending set changes.
type TokenRegenerator interface {
	Regenerate(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error)
}

// HandoffGate decides whether an agent may release goods to a buyer. A nil
// gate allows every handoff.
type HandoffGate interface {
	AuthorizeHandoff(ctx context.Context, agentID, buyerID uuid.UUID) error
}

// Service is the purchase state machine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Purchase, error)
	Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error)
	CompleteBulk(ctx context.Context, input BulkInput) (*BulkResult, error)
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error)
	ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error)
}

// CreateInput is a validated checkout request.
type CreateInput struct {
	BuyerID         uuid.UUID
	ProductID       uuid.UUID
	Quantity        int
	DeliveryMethod  enums.DeliveryMethod
	PaymentMethod   enums.PaymentMethod
	DeliveryAddress *string
	Latitude        *float64
	Longitude       *float64
}

type FinalizeInput struct {
	PurchaseID uuid.UUID
	AgentID    uuid.UUID
}

// FinalizeResult reports the completed purchase along with the status it left.
type FinalizeResult struct {
	Purchase       models.Purchase
	PreviousStatus enums.PurchaseStatus
	Split          settlement.Split
}

type TransitionInput struct {
	PurchaseID uuid.UUID
	To         enums.PurchaseStatus
	ActorID    uuid.UUID
	ActorRole  enums.UserRole
}

type TransitionResult struct {
	Purchase       models.Purchase
	PreviousStatus enums.PurchaseStatus
}

// Deps bundles the collaborators of the purchase service.
type Deps struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Regenerator TokenRegenerator
	Gate        HandoffGate
	Calculator  settlement.Calculator
	Metrics     *metrics.PurchaseMetrics
	Logger      *logger.Logger
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	regen      TokenRegenerator
	gate       HandoffGate
	calc       settlement.Calculator
	metrics    *metrics.PurchaseMetrics
	logg       *logger.Logger
	now        func() time.Time
	newOrderID func() string
}

// NewService builds the purchase service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Regenerator == nil {
		return nil, fmt.Errorf("token regenerator required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if !deps.Calculator.Configured() {
		deps.Calculator = settlement.Default()
	}
	return &service{
		repo:       deps.Repo,
		tx:         deps.Tx,
		outbox:     deps.Outbox,
		regen:      deps.Regenerator,
		gate:       deps.Gate,
		calc:       deps.Calculator,
		metrics:    deps.Metrics,
		logg:       deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
		newOrderID: NewOrderID,
	}, nil
}

// NewOrderID returns a human-readable order reference such as ORD-3F9A1C0B.
func NewOrderID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Purchase, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	var created models.Purchase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if product.VendorID == input.BuyerID {
			return ownProduct(product.ID)
		}
		if !product.Price.Valid {
			return noPrice(product.ID)
		}
		if product.Inventory < input.Quantity {
			return outOfStock(product.ID, input.Quantity, product.Inventory)
		}
		ok, err := repo.DecrementInventory(ctx, product.ID, input.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement inventory")
		}
		if !ok {
			current, err := repo.FindProduct(ctx, product.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload product")
			}
			return outOfStock(product.ID, input.Quantity, current.Inventory)
		}

		now := s.now()
		purchase := models.Purchase{
			ID:                uuid.New(),
			BuyerID:           input.BuyerID,
			ProductID:         product.ID,
			VendorID:          product.VendorID,
			Quantity:          input.Quantity,
			PurchasePrice:     product.Price.Decimal.Mul(decimal.NewFromInt(int64(input.Quantity))).Round(2),
			Status:            input.DeliveryMethod.InitialStatus(),
			DeliveryMethod:    input.DeliveryMethod,
			PaymentMethod:     input.PaymentMethod,
			DeliveryFee:       s.calc.DeliveryFee(input.DeliveryMethod == enums.DeliveryMethodDelivery),
			DeliveryAddress:   trimmedOrNil(input.DeliveryAddress),
			DeliveryLatitude:  input.Latitude,
			DeliveryLongitude: input.Longitude,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.insertWithOrderID(ctx, tx, &purchase); err != nil {
			return err
		}

		event := payloads.PurchaseCreatedEvent{
			PurchaseID:     purchase.ID,
			OrderID:        purchase.OrderID,
			ProductID:      purchase.ProductID,
			BuyerID:        purchase.BuyerID,
			VendorID:       purchase.VendorID,
			Quantity:       purchase.Quantity,
			PurchasePrice:  purchase.PurchasePrice,
			DeliveryMethod: purchase.DeliveryMethod,
			NewStatus:      purchase.Status,
		}
		if err := s.emit(ctx, tx, enums.EventPurchaseCreated, purchase.ID, input.BuyerID, enums.UserRoleUser, event); err != nil {
			return err
		}

		purchase.Product = product
		created = purchase
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated(string(created.DeliveryMethod))
	logCtx := s.logg.WithPurchaseID(ctx, created.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "order_id", created.OrderID), "purchase created")
	s.regenerate(ctx, created.BuyerID)
	return &created, nil
}

// insertWithOrderID retries once with a fresh order id on a unique collision. Each
// attempt runs in a savepoint so a failed insert leaves the outer transaction usable.
func (s *service) insertWithOrderID(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		purchase.OrderID = s.newOrderID()
		err = tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.WithTx(sp).CreatePurchase(ctx, purchase)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, orderIDConstraint, "purchases.order_id") {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert purchase")
		}
		s.logg.Warn(s.logg.WithField(ctx, "order_id", purchase.OrderID), "order id collision, regenerating")
	}
	return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "could not allocate a unique order id")
}

func (s *service) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	if input.PurchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id required")
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}

	var result *FinalizeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		purchase, err := repo.FindPurchase(ctx, input.PurchaseID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
		}
		if !finalizable(*purchase) {
			return invalidStatus(purchase.ID, purchase.Status)
		}
		if err := s.authorize(ctx, input.AgentID, purchase.BuyerID); err != nil {
			return err
		}

		res, err := s.finalizeOne(ctx, tx, *purchase, input.AgentID)
		if err != nil {
			return err
		}
		if err := repo.AddBuyerPurchases(ctx, purchase.BuyerID, purchase.PurchasePrice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update buyer total")
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddFinalized(metrics.ModeSingle, 1)
	logCtx := s.logg.WithFields(s.logg.WithPurchaseID(ctx, result.Purchase.ID.String()), map[string]any{
		"agent_id":        input.AgentID.String(),
		"previous_status": result.PreviousStatus,
		"vendor_amount":   result.Split.VendorAmount.StringFixed(2),
		"commission":      result.Split.CommissionAmount.StringFixed(2),
	})
	s.logg.Info(logCtx, "purchase finalized")
	s.regenerate(ctx, result.Purchase.BuyerID)
	return result, nil
}

// finalizable reports whether p can still be completed. Status is checked
// before the handoff gate so a settled purchase always reports its status.
func finalizable(p models.Purchase) bool {
	return p.Status.IsFinalizable() && !p.IsSettled()
}

func (s *service) authorize(ctx context.Context, agentID, buyerID uuid.UUID) error {
	if s.gate == nil {
		return nil
	}
	return s.gate.AuthorizeHandoff(ctx, agentID, buyerID)
}

// finalizeOne completes one purchase inside tx: settlement, vendor total and the
// status-changed event. The buyer total is left to the caller.
func (s *service) finalizeOne(ctx context.Context, tx *gorm.DB, purchase models.Purchase, agentID uuid.UUID) (*FinalizeResult, error) {
	repo := s.repo.WithTx(tx)
	previous := purchase.Status
	if !finalizable(purchase) {
		return nil, invalidStatus(purchase.ID, previous)
	}

	split := s.calc.Calculate(purchase.PurchasePrice, purchase.DeliveryFee)
	now := s.now()
	ok, err := repo.CompletePurchase(ctx, purchase.ID, previous, agentID, now, split)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete purchase")
	}
	if !ok {
		current, err := repo.FindPurchase(ctx, purchase.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload purchase")
		}
		return nil, invalidStatus(purchase.ID, current.Status)
	}
	if err := repo.AddVendorSales(ctx, purchase.VendorID, split.VendorAmount); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update vendor total")
	}

	purchase.Status = enums.PurchaseStatusCompleted
	purchase.AgentID = &agentID
	purchase.PickupConfirmedAt = &now
	purchase.VendorPaymentAmount = decimal.NewNullDecimal(split.VendorAmount)
	purchase.CommissionAmount = decimal.NewNullDecimal(split.CommissionAmount)
	purchase.UpdatedAt = now

	event := statusChangedEvent(purchase, previous, now)
	event.VendorPaymentAmount = &split.VendorAmount
	event.CommissionAmount = &split.CommissionAmount
	if err := s.emit(ctx, tx, enums.EventPurchaseStatusChanged, purchase.ID, agentID, enums.UserRoleAgent, event); err != nil {
		return nil, err
	}
	return &FinalizeResult{Purchase: purchase, PreviousStatus: previous, Split: split}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.PurchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown status").
			WithDetails(map[string]any{"field": "status", "value": input.To})
	}
	if input.To == enums.PurchaseStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchases are completed only by agent finalize")
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		purchase, err := repo.FindPurchase(ctx, input.PurchaseID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
		}
		previous := purchase.Status
		if !previous.CanTransitionTo(input.To) {
			return invalidStatus(purchase.ID, previous)
		}
		ok, err := repo.UpdateStatus(ctx, purchase.ID, previous, input.To)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update status")
		}
		if !ok {
			current, err := repo.FindPurchase(ctx, purchase.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload purchase")
			}
			return invalidStatus(purchase.ID, current.Status)
		}
		if input.To == enums.PurchaseStatusCancelled {
			if err := repo.RestoreInventory(ctx, purchase.ProductID, purchase.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore inventory")
			}
		}

		now := s.now()
		purchase.Status = input.To
		purchase.UpdatedAt = now
		event := statusChangedEvent(*purchase, previous, now)
		if err := s.emit(ctx, tx, enums.EventPurchaseStatusChanged, purchase.ID, input.ActorID, input.ActorRole, event); err != nil {
			return err
		}
		result = &TransitionResult{Purchase: *purchase, PreviousStatus: previous}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithPurchaseID(ctx, result.Purchase.ID.String()), map[string]any{
		"previous_status": result.PreviousStatus,
		"new_status":      result.Purchase.Status,
	})
	s.logg.Info(logCtx, "purchase status changed")
	if result.PreviousStatus.IsFinalizable() || result.Purchase.Status.IsFinalizable() {
		s.regenerate(ctx, result.Purchase.BuyerID)
	}
	return result, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error) {
	page, err := s.repo.ListBuyerPurchases(ctx, buyerID, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return page, err
		}
		return page, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases")
	}
	return page, nil
}

func (s *service) ListPending(ctx context.Context, buyerID uuid.UUID) ([]models.Purchase, error) {
	rows, err := s.repo.ListPending(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending purchases")
	}
	return rows, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, purchaseID, actorID uuid.UUID, role enums.UserRole, data any) error {
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: actorID, Role: string(role)}
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchaseID,
		Actor:         actor,
		Data:          data,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue purchase event")
	}
	return nil
}

// regenerate refreshes the buyer's token after commit. The token is also rebuilt
// on read when it drifts, so a failure here is logged rather than returned.
func (s *service) regenerate(ctx context.Context, buyerID uuid.UUID) {
	if _, err := s.regen.Regenerate(ctx, buyerID); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "buyer_id", buyerID.String()), "identity token regeneration failed", err)
	}
}

func statusChangedEvent(p models.Purchase, previous enums.PurchaseStatus, at time.Time) payloads.PurchaseStatusChangedEvent {
	return payloads.PurchaseStatusChangedEvent{
		PurchaseID:     p.ID,
		OrderID:        p.OrderID,
		ProductID:      p.ProductID,
		BuyerID:        p.BuyerID,
		VendorID:       p.VendorID,
		PreviousStatus: previous,
		NewStatus:      p.Status,
		AgentID:        p.AgentID,
		PurchasePrice:  p.PurchasePrice,
		DeliveryFee:    p.DeliveryFee,
		ChangedAt:      at,
	}
}

func validateCreate(input CreateInput) error {
	switch {
	case input.BuyerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	case input.ProductID == uuid.Nil:
		return fieldError("product_id", "product id required")
	case input.Quantity < 1:
		return fieldError("quantity", "quantity must be at least 1")
	case !input.DeliveryMethod.IsValid():
		return fieldError("delivery_method", "delivery method must be pickup or delivery")
	case !input.PaymentMethod.IsValid():
		return fieldError("payment_method", "payment method must be momo or credit")
	case input.DeliveryMethod == enums.DeliveryMethodDelivery && trimmedOrNil(input.DeliveryAddress) == nil:
		return missingAddress()
	}
	return nil
}

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
