// Package limiter throttles repeated failed logins per identity using a
// fixed window kept in Redis.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures. Callers may choose to fail open.
var ErrUnavailable = errors.New("login limiter unavailable")

// LoginLimiter decides whether an identity may attempt to log in.
type LoginLimiter interface {
	// Check returns common.ErrRateLimited once the identity has used up its
	// failures for the current window.
	Check(ctx context.Context, identity string) error
	RecordFailure(ctx context.Context, identity string) error
	// Reset forgets the identity's failures, e.g. after a successful login.
	Reset(ctx context.Context, identity string) error
}

const (
	DefaultMaxAttempts = 5
	DefaultCooldown    = 15 * time.Minute
)

// Config values that are not positive fall back to the defaults.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// RedisLimiter counts failures with INCR. The key's TTL is set in the same
// transaction whenever it has none, so a window always ends.
type RedisLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	l := &RedisLimiter{
		redis:       client,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
	}
	if l.maxAttempts <= 0 {
		l.maxAttempts = DefaultMaxAttempts
	}
	if l.cooldown <= 0 {
		l.cooldown = DefaultCooldown
	}
	return l
}

func (l *RedisLimiter) key(identity string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(identity))
}

func (l *RedisLimiter) Check(ctx context.Context, identity string) error {
	count, err := l.redis.Get(ctx, l.key(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if int(count) >= l.maxAttempts {
		return common.ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, identity string) error {
	key := l.key(identity)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.cooldown)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, identity string) error {
	if err := l.redis.Del(ctx, l.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Nop never throttles. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) Check(context.Context, string) error         { return nil }
func (Nop) RecordFailure(context.Context, string) error { return nil }
func (Nop) Reset(context.Context, string) error         { return nil }
