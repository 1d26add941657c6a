package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeleteIfValue removes key only while it still holds value, atomically.
// It reports whether the key was deleted.
func (c *Client) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	if c == nil || c.raw == nil {
		return false, errNotInitialized
	}
	n, err := compareAndDelete.Run(ctx, c.raw, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
