package otp

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

type grantChecker interface {
	HasGrant(ctx context.Context, agentID, buyerID uuid.UUID) (bool, error)
}

// GrantGate lets an agent finalize a buyer's purchases only after verifying
// that buyer's purchase confirmation code.
type GrantGate struct {
	grants grantChecker
}

func NewGrantGate(grants grantChecker) *GrantGate {
	return &GrantGate{grants: grants}
}

func (g *GrantGate) AuthorizeHandoff(ctx context.Context, agentID, buyerID uuid.UUID) error {
	ok, err := g.grants.HasGrant(ctx, agentID, buyerID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "buyer verification required").WithDetails(map[string]any{
			"buyer_id": buyerID.String(),
		})
	}
	return nil
}
