package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const defaultOTPRetention = 24 * time.Hour

type OTPCleanupJobParams struct {
	Logger    *logger.Logger
	Cleaner   otpCleaner
	Retention time.Duration
}

type otpCleaner interface {
	CleanupExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// NewOTPCleanupJob deletes OTP challenges that expired more than Retention ago.
func NewOTPCleanupJob(params OTPCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cleaner == nil {
		return nil, fmt.Errorf("otp service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOTPRetention
	}
	return &otpCleanupJob{logg: params.Logger, cleaner: params.Cleaner, retention: retention}, nil
}

type otpCleanupJob struct {
	logg      *logger.Logger
	cleaner   otpCleaner
	retention time.Duration
}

func (j *otpCleanupJob) Name() string { return "otp_cleanup" }

func (j *otpCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.cleaner.CleanupExpired(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("otp cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "otp cleanup complete")
	return nil
}
