package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_000, 0)
	l := NewRedisLimiter(client, "mfa:", 2, time.Minute)
	l.Now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "user 1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "user 1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.CurrentHits)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	key := "mfa:user_1:" + "1699999980"
	assert.True(t, mr.Exists(key))

	// next window starts fresh
	now = now.Add(time.Minute)
	res, err = l.Allow(ctx, "user 1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryLimiter(1, time.Minute)
	l.Now = func() time.Time { return now }

	ctx := context.Background()
	res, _ := l.Allow(ctx, "u")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "u")
	assert.False(t, res.Allowed)
	res, _ = l.Allow(ctx, "v")
	assert.True(t, res.Allowed)

	now = now.Add(time.Minute)
	res, _ = l.Allow(ctx, "u")
	assert.True(t, res.Allowed)
}
