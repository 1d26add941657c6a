package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agaseke/agaseke-backend/pkg/config"
)

// DecodeReason classifies why an identity token was rejected.
type DecodeReason string

const (
	ReasonInvalidSignature DecodeReason = "invalid_signature"
	ReasonExpired          DecodeReason = "expired"
	ReasonMalformed        DecodeReason = "malformed"
)

// DecodeError is returned by Codec.Decode for any token that cannot be trusted.
type DecodeError struct {
	Reason DecodeReason
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "identity token " + string(e.Reason)
	}
	return fmt.Sprintf("identity token %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var signingMethod = jwt.SigningMethodHS256

type tokenClaims struct {
	Pending []string `json:"pending"`
	jwt.RegisteredClaims
}

// Payload is the decoded content of an identity token. Pending is a display
// snapshot only and must not be used to act on purchases.
type Payload struct {
	OwnerID   uuid.UUID
	Pending   []uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies buyer identity tokens (HS256 JWT).
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewCodec(cfg config.IdentityTokenConfig) (*Codec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("identity token secret is required")
	}
	return &Codec{secret: []byte(cfg.Secret), issuer: cfg.Issuer, now: time.Now}, nil
}

// Encode signs a token for owner listing the pending purchase ids, valid for ttl.
func (c *Codec) Encode(ownerID uuid.UUID, pending []uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if ownerID == uuid.Nil {
		return "", time.Time{}, errors.New("owner id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be positive")
	}
	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	ids := make([]string, 0, len(pending))
	for _, id := range pending {
		ids = append(ids, id.String())
	}
	claims := tokenClaims{
		Pending: ids,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   ownerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing identity token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode verifies signature and expiry. Every failure is a *DecodeError.
func (c *Codec) Decode(token string) (*Payload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &DecodeError{Reason: ReasonMalformed, Err: errors.New("empty token")}
	}

	claims := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, &DecodeError{Reason: classify(err), Err: err}
	}

	owner, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonMalformed, Err: fmt.Errorf("subject: %w", err)}
	}
	pending := make([]uuid.UUID, 0, len(claims.Pending))
	for _, raw := range claims.Pending {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, &DecodeError{Reason: ReasonMalformed, Err: fmt.Errorf("pending id: %w", err)}
		}
		pending = append(pending, id)
	}

	payload := &Payload{OwnerID: owner, Pending: pending}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Time
	}
	return payload, nil
}

func classify(err error) DecodeReason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	default:
		return ReasonMalformed
	}
}
