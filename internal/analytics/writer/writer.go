package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agaseke/agaseke-backend/internal/analytics/types"
	pkgbigquery "github.com/agaseke/agaseke-backend/pkg/bigquery"
)

// RetryPolicy bounds how often a settlement insert is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// DefaultRetryPolicy keeps total retry time well under the Pub/Sub ack deadline.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 250 * time.Millisecond,
	MaximumBackoff: 2 * time.Second,
}

type rowPutter interface {
	Put(ctx context.Context, insertID string, row any) error
}

// SettlementWriter streams one settlement row per completed purchase. Rows are
// written synchronously so the Pub/Sub message is only acked after BigQuery
// accepted the row.
type SettlementWriter struct {
	client rowPutter
	retry  RetryPolicy
}

// New builds a writer over the shared BigQuery client. Zero policy fields fall
// back to DefaultRetryPolicy.
func New(client *pkgbigquery.Client, retry RetryPolicy) (*SettlementWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = DefaultRetryPolicy.InitialBackoff
	}
	retry.MaximumBackoff = max(retry.MaximumBackoff, retry.InitialBackoff)
	return &SettlementWriter{client: client, retry: retry}, nil
}

// InsertSettlement writes row keyed by its event id.
func (w *SettlementWriter) InsertSettlement(ctx context.Context, row types.SettlementRow) error {
	if row.EventID == "" {
		return errors.New("settlement row requires an event id")
	}
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.client.Put(ctx, row.EventID, &row)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !retryable(err) {
			return fmt.Errorf("insert settlement %s (attempt %d): %w", row.PurchaseID, attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// retryable reports whether every underlying failure is transient. Row-level
// errors are unwrapped so a single bad row fails the whole insert.
func retryable(err error) bool {
	leaves := leafErrors(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !transient(leaf) {
			return false
		}
	}
	return true
}

func leafErrors(err error) []error {
	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		var out []error
		for _, rowErr := range pme {
			for _, inner := range rowErr.Errors {
				out = append(out, leafErrors(inner)...)
			}
		}
		return out
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		var out []error
		for _, inner := range multi {
			out = append(out, leafErrors(inner)...)
		}
		return out
	}
	if err == nil {
		return nil
	}
	return []error{err}
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		return bqErr.Reason == "backendError" || bqErr.Reason == "rateLimitExceeded" || bqErr.Reason == "timeout"
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
