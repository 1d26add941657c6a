package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agaseke/agaseke-backend/api/responses"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"

	standardReplayTTL = 24 * time.Hour
	moneyReplayTTL    = 7 * 24 * time.Hour
	inflightTTL       = 2 * time.Minute
)

// replayRoutes lists the mutating routes that honor Idempotency-Key. Routes that
// create purchases or settle money keep their replay record for a week.
var replayRoutes = []struct {
	method   string
	template string
	ttl      time.Duration
}{
	{http.MethodPost, "/api/v1/purchases", moneyReplayTTL},
	{http.MethodPost, "/api/v1/agent/purchases/{purchaseId}/finalize", moneyReplayTTL},
	{http.MethodPost, "/api/v1/agent/purchases/complete", moneyReplayTTL},
	{http.MethodPost, "/api/v1/agent/otp", standardReplayTTL},
	{http.MethodPost, "/api/v1/staff/purchases/{purchaseId}/status", standardReplayTTL},
}

// replayRecord is what lives under an idempotency key. A record without a
// status is a claim held by a request that has not finished yet.
type replayRecord struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r replayRecord) pending() bool { return r.Status == 0 }

type idempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Idempotency makes the listed routes safe to retry. The first request with a
// key claims it, runs, and stores its response; repeats replay that response.
// A repeat that arrives while the first is still running gets a 409. Server
// errors release the claim so the client may try again.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)
			fingerprint := fingerprintBody(body)

			claim, _ := json.Marshal(replayRecord{Fingerprint: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(claim), inflightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayExisting(ctx, store, key, fingerprint, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// The claim must outlive a canceled client so the outcome is kept.
			storeCtx := context.WithoutCancel(ctx)
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(storeCtx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency claim", err)
				}
				return
			}
			done, _ := json.Marshal(replayRecord{
				Fingerprint: fingerprint,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(storeCtx, key, string(done), ttl); err != nil && logg != nil {
				logg.Error(ctx, "store idempotency record", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, store idempotencyStore, key, fingerprint string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Claim expired or was released between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var rec replayRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case rec.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
	case rec.pending():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
	}
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func replayTTL(method, path string) (time.Duration, bool) {
	for _, route := range replayRoutes {
		if route.method == method && pathMatches(route.template, path) {
			return route.ttl, true
		}
	}
	return 0, false
}

// pathMatches compares a path to a chi style template; a {param} segment
// matches any single non-empty segment.
func pathMatches(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if path == "" || len(got) != len(want) {
		return false
	}
	for i, seg := range want {
		isParam := strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
		if (isParam && got[i] == "") || (!isParam && got[i] != seg) {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
