package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agaseke/agaseke-backend/pkg/config"
)

func newTestCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec(config.IdentityTokenConfig{Secret: "identity-secret", Issuer: "agaseke-identity"})
	require.NoError(t, err)
	codec.now = func() time.Time { return now }
	return codec
}

func requireReason(t *testing.T, err error, want DecodeReason) {
	t.Helper()
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
	require.Equal(t, want, decodeErr.Reason)
}

func TestCodecRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)
	owner := uuid.New()
	pending := []uuid.UUID{uuid.New(), uuid.New()}

	token, expiresAt, err := codec.Encode(owner, pending, time.Hour)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), expiresAt)

	again, _, err := codec.Encode(owner, pending, time.Hour)
	require.NoError(t, err)
	require.Equal(t, token, again, "encoding is deterministic for the same instant")

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, owner, payload.OwnerID)
	require.Equal(t, pending, payload.Pending)
	require.True(t, payload.ExpiresAt.Equal(expiresAt))
}

func TestCodecDecodeExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)
	token, _, err := codec.Encode(uuid.New(), nil, time.Minute)
	require.NoError(t, err)

	codec.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = codec.Decode(token)
	requireReason(t, err, ReasonExpired)
}

func TestCodecDecodeInvalidSignature(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)
	token, _, err := codec.Encode(uuid.New(), nil, time.Hour)
	require.NoError(t, err)

	other, err := NewCodec(config.IdentityTokenConfig{Secret: "another-secret", Issuer: "agaseke-identity"})
	require.NoError(t, err)
	_, err = other.Decode(token)
	requireReason(t, err, ReasonInvalidSignature)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = codec.Decode(tampered)
	requireReason(t, err, ReasonInvalidSignature)
}

func TestCodecDecodeMalformed(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Decode(token)
		requireReason(t, err, ReasonMalformed)
	}
}

func TestCodecEncodeValidation(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	_, _, err := codec.Encode(uuid.Nil, nil, time.Hour)
	require.Error(t, err)
	_, _, err = codec.Encode(uuid.New(), nil, 0)
	require.Error(t, err)

	_, err = NewCodec(config.IdentityTokenConfig{})
	require.Error(t, err)
}
