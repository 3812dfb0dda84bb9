package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimiterUnavailable is returned when no Redis client is configured.
var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// RateLimitResult describes one counted hit against a fixed window.
type RateLimitResult struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// RateLimitRepository implements fixed window counters in Redis.
type RateLimitRepository struct {
	client *redis.Client
}

// NewRateLimitRepository constructs the repository. A nil client makes every
// call return ErrLimiterUnavailable.
func NewRateLimitRepository(client *redis.Client) *RateLimitRepository {
	return &RateLimitRepository{client: client}
}

// Hit counts one request for resource/id and reports whether it fits in limit per window.
func (r *RateLimitRepository) Hit(ctx context.Context, resource, id string, limit int, window time.Duration) (RateLimitResult, error) {
	if r.client == nil {
		return RateLimitResult{}, ErrLimiterUnavailable
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)
	cnt, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("redis incr %s: %w", key, err)
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	// A counter without expiry would block forever; repair it.
	if cnt == 1 || ttl < 0 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("redis expire %s: %w", key, err)
		}
		ttl = window
	}

	result := RateLimitResult{Allowed: cnt <= int64(limit), Count: cnt}
	if !result.Allowed {
		result.RetryAfter = ttl
	}
	return result, nil
}
