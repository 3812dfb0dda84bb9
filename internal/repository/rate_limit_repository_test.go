package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRateLimitRepository(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := repo.Hit(ctx, "claim_reveal", "11:7", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := repo.Hit(ctx, "claim_reveal", "11:7", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.Count)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := repo.Hit(ctx, "claim_reveal", "12:7", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	mr.FastForward(time.Minute + time.Second)
	res, err = repo.Hit(ctx, "claim_reveal", "11:7", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimitRepairsMissingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, mr.Set("rl:claim_reveal:11:7", "5"))

	repo := NewRateLimitRepository(client)
	_, err := repo.Hit(context.Background(), "claim_reveal", "11:7", 2, time.Minute)
	require.NoError(t, err)
	assert.Greater(t, mr.TTL("rl:claim_reveal:11:7"), time.Duration(0))
}

func TestRateLimitWithoutClient(t *testing.T) {
	_, err := NewRateLimitRepository(nil).Hit(context.Background(), "r", "id", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimiterUnavailable)
}

func TestRateLimitRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRateLimitRepository(client).Hit(context.Background(), "r", "id", 1, time.Minute)
	assert.Error(t, err)
}
