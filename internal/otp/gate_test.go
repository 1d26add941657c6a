package otp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

type stubGrants struct {
	ok  bool
	err error
}

func (s stubGrants) HasGrant(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.ok, s.err
}

func TestGrantGate(t *testing.T) {
	ctx := context.Background()
	agent, buyer := uuid.New(), uuid.New()

	require.NoError(t, NewGrantGate(stubGrants{ok: true}).AuthorizeHandoff(ctx, agent, buyer))

	err := NewGrantGate(stubGrants{}).AuthorizeHandoff(ctx, agent, buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	boom := errors.New("redis down")
	err = NewGrantGate(stubGrants{err: boom}).AuthorizeHandoff(ctx, agent, buyer)
	require.ErrorIs(t, err, boom)
}
