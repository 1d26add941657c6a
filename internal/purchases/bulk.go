package purchases

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
)

// BulkOutcome classifies a bulk completion for callers that branch on it.
type BulkOutcome string

const (
	BulkOutcomeAll     BulkOutcome = "all"
	BulkOutcomePartial BulkOutcome = "partial"
	BulkOutcomeNone    BulkOutcome = "none"
)

type BulkInput struct {
	PurchaseIDs []uuid.UUID
	AgentID     uuid.UUID
}

// BulkFailure is one purchase that could not be completed, reported as data.
type BulkFailure struct {
	PurchaseID    uuid.UUID
	OrderID       string
	Reason        string
	CurrentStatus enums.PurchaseStatus
	Product       *models.Product
}

type BulkResult struct {
	BuyerID                 uuid.UUID
	Outcome                 BulkOutcome
	Completed               []FinalizeResult
	Failed                  []BulkFailure
	TotalVendorPayment      decimal.Decimal
	TotalCommission         decimal.Decimal
	TotalBuyerPurchaseValue decimal.Decimal
}

// CompleteBulk finalizes every listed purchase of one buyer in a single transaction.
// Purchases not awaiting handoff are reported as failures; any other error rolls
// back the whole batch.
func (s *service) CompleteBulk(ctx context.Context, input BulkInput) (*BulkResult, error) {
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	ids := dedupe(input.PurchaseIDs)
	if len(ids) == 0 {
		return nil, fieldError("purchase_ids", "no purchase ids provided")
	}

	var result *BulkResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindPurchases(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchases")
		}
		if len(rows) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no valid purchases found")
		}
		byID := make(map[uuid.UUID]models.Purchase, len(rows))
		for _, p := range rows {
			byID[p.ID] = p
		}
		buyerID, err := singleBuyer(ids, byID)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(rows, finalizable) {
			if err := s.authorize(ctx, input.AgentID, buyerID); err != nil {
				return err
			}
		}

		res := &BulkResult{
			BuyerID:                 buyerID,
			TotalVendorPayment:      decimal.Zero,
			TotalCommission:         decimal.Zero,
			TotalBuyerPurchaseValue: decimal.Zero,
		}
		for _, id := range ids {
			purchase, found := byID[id]
			if !found {
				res.Failed = append(res.Failed, BulkFailure{PurchaseID: id, Reason: "Purchase not found"})
				continue
			}
			done, err := s.finalizeOne(ctx, tx, purchase, input.AgentID)
			if err != nil {
				var statusErr *InvalidStatusError
				if errors.As(err, &statusErr) {
					res.Failed = append(res.Failed, BulkFailure{
						PurchaseID:    purchase.ID,
						OrderID:       purchase.OrderID,
						Reason:        statusErr.Error(),
						CurrentStatus: statusErr.Current,
						Product:       purchase.Product,
					})
					continue
				}
				return err
			}
			res.Completed = append(res.Completed, *done)
			res.TotalVendorPayment = res.TotalVendorPayment.Add(done.Split.VendorAmount)
			res.TotalCommission = res.TotalCommission.Add(done.Split.CommissionAmount)
			res.TotalBuyerPurchaseValue = res.TotalBuyerPurchaseValue.Add(purchase.PurchasePrice)
		}

		if len(res.Completed) > 0 {
			if err := repo.AddBuyerPurchases(ctx, buyerID, res.TotalBuyerPurchaseValue); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update buyer total")
			}
		}
		res.Outcome = classify(len(res.Completed), len(res.Failed))
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddFinalized(metrics.ModeBulk, len(result.Completed))
	s.metrics.IncBulkOutcome(string(result.Outcome))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"agent_id":        input.AgentID.String(),
		"buyer_id":        result.BuyerID.String(),
		"outcome":         result.Outcome,
		"total_completed": len(result.Completed),
		"total_failed":    len(result.Failed),
	})
	s.logg.Info(logCtx, "bulk completion finished")
	if len(result.Completed) > 0 {
		s.regenerate(ctx, result.BuyerID)
	}
	return result, nil
}

func singleBuyer(ids []uuid.UUID, byID map[uuid.UUID]models.Purchase) (uuid.UUID, error) {
	var buyers []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || seen[p.BuyerID] {
			continue
		}
		seen[p.BuyerID] = true
		buyers = append(buyers, p.BuyerID)
	}
	if len(buyers) != 1 {
		return uuid.Nil, mixedBuyers(buyers)
	}
	return buyers[0], nil
}

func classify(completed, failed int) BulkOutcome {
	switch {
	case completed > 0 && failed == 0:
		return BulkOutcomeAll
	case completed > 0:
		return BulkOutcomePartial
	default:
		return BulkOutcomeNone
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
