package router

import (
	"context"

	"github.com/agaseke/agaseke-backend/internal/analytics/types"
)

type fakeWriter struct {
	inserted []types.SettlementRow
	err      error
}

func (f *fakeWriter) InsertSettlement(_ context.Context, row types.SettlementRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}
