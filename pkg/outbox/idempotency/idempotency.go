package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a consumed marker survives when no TTL is configured.
const DefaultTTL = 72 * time.Hour

var (
	errNoStore    = errors.New("idempotency store is required")
	errNoConsumer = errors.New("consumer name is required")
	errNoEventID  = errors.New("event id is required")
)

// Store is the redis surface needed to dedupe consumed events.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ConsumedEventKey(consumer, eventID string) string
}

// Manager records which event ids each consumer has already taken.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager returns a Manager whose markers expire after ttl. A zero ttl
// falls back to DefaultTTL.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errNoStore
	}
	switch {
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim marks eventID as taken by consumer. It reports whether an earlier
// delivery had already claimed it.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (duplicate bool, err error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Release drops the claim so a redelivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errNoConsumer
	case eventID == uuid.Nil:
		return "", errNoEventID
	}
	return m.store.ConsumedEventKey(consumer, eventID.String()), nil
}
