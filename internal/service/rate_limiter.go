package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tahamediouni1/RebiiProject/pkg/database"
)

// RequestRateLimiter is the coarse per-IP throttle applied at the HTTP edge,
// backed by a Redis sliding-window log so it is shared across instances.
// It is independent of the per-identity AttemptLimiter used inside the
// auth flows.
type RequestRateLimiter struct {
	redis *database.Redis
}

// NewRequestRateLimiter creates a new edge rate limiter
func NewRequestRateLimiter(redis *database.Redis) *RequestRateLimiter {
	return &RequestRateLimiter{redis: redis}
}

// Allow checks the request against the limit for the key. When denied,
// retryAfter reports how long until the oldest counted request leaves
// the window.
func (r *RequestRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error) {
	now := time.Now()
	windowStart := now.Add(-window)
	redisKey := "ratelimit:" + key

	if err := r.redis.Client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.Unix())).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := r.redis.Client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	if count >= int64(limit) {
		oldest, err := r.redis.Client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestTime := time.Unix(int64(oldest[0].Score), 0)
			retry := window - time.Since(oldestTime)
			if retry < 0 {
				retry = 0
			}
			return false, retry, nil
		}
		return false, window, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Unix())
	if err := r.redis.Client.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.Unix()),
		Member: member,
	}).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to add entry: %w", err)
	}

	// Expire the key a little past the window so idle keys clean themselves up.
	_ = r.redis.Client.Expire(ctx, redisKey, window+time.Minute).Err()

	return true, 0, nil
}

// Remaining returns the number of requests still allowed for the key.
func (r *RequestRateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	windowStart := time.Now().Add(-window)
	redisKey := "ratelimit:" + key

	if err := r.redis.Client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.Unix())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := r.redis.Client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
