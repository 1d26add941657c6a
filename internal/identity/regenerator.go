package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	dbtypes "github.com/agaseke/agaseke-backend/pkg/db/types"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// ScanResult is what an agent sees after scanning a buyer's QR code. Pending is
// always re-queried; the token snapshot is never trusted.
type ScanResult struct {
	Buyer     models.User
	Pending   []models.Purchase
	Stale     bool
	ExpiresAt time.Time
}

// Regenerator keeps each buyer's identity token in sync with their pending purchases.
type Regenerator struct {
	repo   Repository
	codec  *Codec
	ttl    time.Duration
	qrSize int
	logg   *logger.Logger
	now    func() time.Time
}

func NewRegenerator(repo Repository, codec *Codec, cfg config.IdentityTokenConfig, logg *logger.Logger) (*Regenerator, error) {
	if repo == nil {
		return nil, errors.New("identity repository required")
	}
	if codec == nil {
		return nil, errors.New("identity codec required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("identity token ttl must be positive")
	}
	return &Regenerator{
		repo:   repo,
		codec:  codec,
		ttl:    cfg.TTL,
		qrSize: cfg.QRSize,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Regenerate rebuilds the buyer's token from a fresh query of purchases awaiting handoff.
func (r *Regenerator) Regenerate(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	pending, err := r.repo.ListPendingPurchases(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending purchases")
	}
	return r.store(ctx, buyerID, pendingIDs(pending))
}

// Current returns the buyer's live token, creating it on first use and refreshing it
// when it has expired or no longer matches the live pending set.
func (r *Regenerator) Current(ctx context.Context, buyerID uuid.UUID) (*models.IdentityToken, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	existing, err := r.repo.FindToken(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity token")
	}
	pending, err := r.repo.ListPendingPurchases(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending purchases")
	}
	ids := pendingIDs(pending)
	if existing != nil && !existing.IsExpired(r.now()) && sameIDs(existing.PendingPurchaseIDs, ids) {
		return existing, nil
	}
	return r.store(ctx, buyerID, ids)
}

// QRCode renders the token as a PNG.
func (r *Regenerator) QRCode(token *models.IdentityToken) ([]byte, error) {
	if token == nil {
		return nil, errors.New("token is required")
	}
	return RenderQR(token.Token, r.qrSize)
}

// Scan decodes a presented token and resolves the buyer and their live pending purchases.
func (r *Regenerator) Scan(ctx context.Context, raw string) (*ScanResult, error) {
	payload, err := r.codec.Decode(raw)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "identity token "+string(decodeErr.Reason)).
				WithDetails(map[string]any{"reason": decodeErr.Reason})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "identity token rejected")
	}

	buyer, err := r.repo.FindUser(ctx, payload.OwnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load buyer")
	}
	pending, err := r.repo.ListPendingPurchases(ctx, buyer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending purchases")
	}
	stored, err := r.repo.FindToken(ctx, buyer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity token")
	}

	return &ScanResult{
		Buyer:     *buyer,
		Pending:   pending,
		Stale:     stored == nil || stored.Token != raw,
		ExpiresAt: payload.ExpiresAt,
	}, nil
}

// PurgeExpired removes tokens that expired before cutoff.
func (r *Regenerator) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.repo.DeleteExpiredBefore(ctx, cutoff)
}

func (r *Regenerator) store(ctx context.Context, buyerID uuid.UUID, ids []uuid.UUID) (*models.IdentityToken, error) {
	signed, expiresAt, err := r.codec.Encode(buyerID, ids, r.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode identity token")
	}
	now := r.now().UTC()
	token := &models.IdentityToken{
		UserID:             buyerID,
		Token:              signed,
		PendingPurchaseIDs: dbtypes.UUIDArray(ids),
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.repo.UpsertToken(ctx, token); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("store identity token for %s", buyerID))
	}
	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{"buyer_id": buyerID.String(), "pending_count": len(ids)})
		r.logg.Debug(logCtx, "identity token regenerated")
	}
	return token, nil
}

func pendingIDs(purchases []models.Purchase) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.ID)
	}
	return ids
}

func sameIDs(stored dbtypes.UUIDArray, live []uuid.UUID) bool {
	if len(stored) != len(live) {
		return false
	}
	for _, id := range live {
		if !stored.Contains(id) {
			return false
		}
	}
	return true
}
