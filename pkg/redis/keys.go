package redis

import "strings"

const keyNamespace = "agk"

// Key families. Every key is agk:<family>:<parts...>.
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyOTPGrant    = "otp_grant"
	familyLock        = "lock"
	familyConsumed    = "consumed"
)

// IdempotencyKey namespaces a stored HTTP response.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(familyIdempotency, scope, id)
}

// RateLimitKey namespaces a fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(familyRateLimit, scope)
}

// OTPGrantKey marks that agentID verified buyerID's purchase code.
func (c *Client) OTPGrantKey(agentID, buyerID string) string {
	return buildKey(familyOTPGrant, agentID, buyerID)
}

// LockKey namespaces a distributed lock.
func (c *Client) LockKey(scope, name string) string {
	return buildKey(familyLock, scope, name)
}

// ConsumedEventKey is the dedupe marker for one consumer and event.
func (c *Client) ConsumedEventKey(consumer, eventID string) string {
	return buildKey(familyConsumed, consumer, eventID)
}

func buildKey(family string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(family)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
