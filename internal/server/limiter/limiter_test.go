package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_ThrottlesAfterMaxFailures(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxAttempts: 3, Cooldown: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "alice@example.com"))
		require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	}

	assert.ErrorIs(t, l.Check(ctx, "alice@example.com"), common.ErrRateLimited)
	assert.ErrorIs(t, l.Check(ctx, " ALICE@example.com "), common.ErrRateLimited, "identity is normalised")
	assert.NoError(t, l.Check(ctx, "bob@example.com"), "other identities are independent")

	ttl := mr.TTL("login:alice@example.com")
	assert.Equal(t, 15*time.Minute, ttl)

	mr.FastForward(16 * time.Minute)
	assert.NoError(t, l.Check(ctx, "alice@example.com"), "window expired")
}

func TestRedisLimiter_TTLSetOnlyOnFirstFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxAttempts: 5, Cooldown: 10 * time.Minute})
	ctx := context.Background()

	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	mr.FastForward(4 * time.Minute)
	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))

	assert.Equal(t, 6*time.Minute, mr.TTL("login:alice@example.com"))
}

func TestRedisLimiter_Reset(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	require.ErrorIs(t, l.Check(ctx, "alice@example.com"), common.ErrRateLimited)

	require.NoError(t, l.Reset(ctx, "alice@example.com"))
	assert.NoError(t, l.Check(ctx, "alice@example.com"))
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLimiter(rdb, Config{MaxAttempts: 1, Cooldown: time.Minute})

	ctx := context.Background()
	assert.ErrorIs(t, l.Check(ctx, "a"), ErrUnavailable)
	assert.ErrorIs(t, l.RecordFailure(ctx, "a"), ErrUnavailable)
	assert.ErrorIs(t, l.Reset(ctx, "a"), ErrUnavailable)
}

func TestNop(t *testing.T) {
	var l LoginLimiter = Nop{}
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.RecordFailure(ctx, "a"))
	}
	assert.NoError(t, l.Check(ctx, "a"))
	assert.NoError(t, l.Reset(ctx, "a"))
}

func TestRedisLimiter_DefaultsForNonPositiveConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxAttempts: 0, Cooldown: -time.Second})
	ctx := context.Background()

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	}
	assert.NoError(t, l.Check(ctx, "alice@example.com"), "one failure must not lock the identity")

	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	assert.ErrorIs(t, l.Check(ctx, "alice@example.com"), common.ErrRateLimited)
	assert.Equal(t, DefaultCooldown, mr.TTL("login:alice@example.com"))
}

func TestRedisLimiter_KeyWithoutTTLGetsOne(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxAttempts: 3, Cooldown: 10 * time.Minute})
	ctx := context.Background()

	// a counter left behind without an expiry
	require.NoError(t, mr.Set("login:alice@example.com", "7"))

	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	assert.Equal(t, 10*time.Minute, mr.TTL("login:alice@example.com"))

	mr.FastForward(11 * time.Minute)
	assert.NoError(t, l.Check(ctx, "alice@example.com"), "lockout is never permanent")
}
