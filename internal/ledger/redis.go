package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "otp:v1:"
	maxTxRetries   = 5
)

// ErrContention is returned when optimistic transactions keep failing for one subject.
var ErrContention = errors.New("challenge store contention")

// RedisStore keeps challenges in Redis so they survive across handler goroutines
// and, if needed, across instances sharing the same Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(subject string) string {
	return redisKeyPrefix + subject
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, ch Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	return s.client.Set(ctx, s.key(ch.Subject), payload, ttl).Err()
}

// Update implements Store using WATCH/MULTI so the read-decide-delete sequence is
// atomic with respect to concurrent Put or Update calls on the same subject.
func (s *RedisStore) Update(ctx context.Context, subject string, fn func(*Challenge) (bool, error)) error {
	key := s.key(subject)
	var fnErr error

	txf := func(tx *redis.Tx) error {
		fnErr = nil
		raw, err := tx.Get(ctx, key).Bytes()
		var current *Challenge
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var ch Challenge
			if err := json.Unmarshal(raw, &ch); err != nil {
				return fmt.Errorf("decode challenge: %w", err)
			}
			current = &ch
		}

		drop, err := fn(current)
		fnErr = err
		if !drop || current == nil {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		return fnErr
	}
	return ErrContention
}
