package redis

import (
	"context"
	"time"
)

// FixedWindowAllow counts one hit against scope and reports whether the count
// is still within limit for the current window. The window starts at the first
// hit. A counter left without a TTL, e.g. after a failed EXPIRE, is given one
// on the next hit so it cannot block the scope forever.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	store, err := c.cmd()
	if err != nil {
		return false, 0, err
	}
	key := c.RateLimitKey(scope)
	count, err := store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if window > 0 {
		needsTTL := count == 1
		if !needsTTL {
			ttl, ttlErr := store.TTL(ctx, key).Result()
			needsTTL = ttlErr == nil && ttl == -1
		}
		if needsTTL {
			if err := store.Expire(ctx, key, window).Err(); err != nil {
				return false, count, err
			}
		}
	}
	return count <= limit, count, nil
}
