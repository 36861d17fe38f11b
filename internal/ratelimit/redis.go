package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:v1:"

// fixedWindowScript increments the counter only while it is under the limit and
// starts the window expiry on the first hit.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter keeps counters in Redis.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter wraps a go-redis client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, policy Policy, key string) (Decision, error) {
	redisKey := redisKeyPrefix + policy.Name + ":" + key
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, policy.Max, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	resetIn := time.Duration(res[2]) * time.Millisecond
	if resetIn < 0 {
		resetIn = policy.Window
	}
	return decide(policy, int(res[1]), res[0] == 1, resetIn), nil
}
