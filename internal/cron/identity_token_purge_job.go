package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const defaultIdentityTokenRetention = 7 * 24 * time.Hour

type IdentityTokenPurgeJobParams struct {
	Logger    *logger.Logger
	Purger    tokenPurger
	Retention time.Duration
}

type tokenPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewIdentityTokenPurgeJob removes identity tokens that expired more than Retention ago.
// Buyers who return later get a fresh token on read.
func NewIdentityTokenPurgeJob(params IdentityTokenPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purger == nil {
		return nil, fmt.Errorf("token purger required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultIdentityTokenRetention
	}
	return &identityTokenPurgeJob{
		logg:      params.Logger,
		purger:    params.Purger,
		retention: retention,
		now:       time.Now,
	}, nil
}

type identityTokenPurgeJob struct {
	logg      *logger.Logger
	purger    tokenPurger
	retention time.Duration
	now       func() time.Time
}

func (j *identityTokenPurgeJob) Name() string { return "identity_token_purge" }

func (j *identityTokenPurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("identity token purge: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "identity token purge complete")
	return nil
}
