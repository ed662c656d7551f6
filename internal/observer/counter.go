package observer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bizpulse/internal/constants"
)

// AttemptCounter counts failed logins per (email, ip) within a fixed
// window that starts at the first failure.
type AttemptCounter interface {
	Increment(ctx context.Context, email, ip string) (int, error)
	Reset(ctx context.Context, email, ip string) error
}

// incrWithinWindow starts the expiry on the first increment only.
var incrWithinWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

type RedisAttemptCounter struct {
	client redis.UniversalClient
	window time.Duration
}

func NewRedisAttemptCounter(client redis.UniversalClient, window time.Duration) *RedisAttemptCounter {
	return &RedisAttemptCounter{client: client, window: window}
}

func attemptKey(email, ip string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email)) + "|" + ip))
	return constants.CacheKeyPrefixLoginAttempt + hex.EncodeToString(sum[:])
}

func (c *RedisAttemptCounter) Increment(ctx context.Context, email, ip string) (int, error) {
	n, err := incrWithinWindow.Run(ctx, c.client, []string{attemptKey(email, ip)}, c.window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis INCR failed: %w", err)
	}
	return n, nil
}

func (c *RedisAttemptCounter) Reset(ctx context.Context, email, ip string) error {
	if err := c.client.Del(ctx, attemptKey(email, ip)).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}
