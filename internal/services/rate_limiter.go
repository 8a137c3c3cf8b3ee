package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"pwanotify/internal/repositories"
)

// RateLimiter caps how many OTP codes a user can be issued per window.
type RateLimiter interface {
	// Allow fails with ErrRateLimited when the user has used up the window.
	Allow(ctx context.Context, userID string) error
	// Record counts one issued code.
	Record(ctx context.Context, userID string) error
}

// storeLimiter counts issued rows in the OTP store.
type storeLimiter struct {
	otps   repositories.OtpRepository
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewStoreRateLimiter(otps repositories.OtpRepository, limit int, window time.Duration) RateLimiter {
	return &storeLimiter{otps: otps, limit: limit, window: window, now: time.Now}
}

func (l *storeLimiter) Allow(ctx context.Context, userID string) error {
	if l.limit <= 0 {
		return nil
	}
	n, err := l.otps.CountIssuedSince(ctx, userID, l.now().UTC().Add(-l.window))
	if err != nil {
		return err
	}
	if n >= l.limit {
		return rateLimited(userID, n, l.window)
	}
	return nil
}

func (l *storeLimiter) Record(context.Context, string) error { return nil }

// RedisCounter is the subset of *redis.Client the limiter uses.
type RedisCounter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisLimiter keeps a fixed-window counter per user, started by the first issuance.
type redisLimiter struct {
	rdb    RedisCounter
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(rdb RedisCounter, limit int, window time.Duration) RateLimiter {
	return &redisLimiter{rdb: rdb, limit: limit, window: window}
}

func otpLimitKey(userID string) string { return "pwanotify:otp:issued:" + userID }

func (l *redisLimiter) Allow(ctx context.Context, userID string) error {
	if l.limit <= 0 {
		return nil
	}
	n, err := l.rdb.Get(ctx, otpLimitKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return oops.Code("RATE_LIMIT_BACKEND").With("user_id", userID).Wrap(err)
	}
	if n >= l.limit {
		return rateLimited(userID, n, l.window)
	}
	return nil
}

func (l *redisLimiter) Record(ctx context.Context, userID string) error {
	key := otpLimitKey(userID)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return oops.Code("RATE_LIMIT_BACKEND").With("user_id", userID).Wrap(err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return oops.Code("RATE_LIMIT_BACKEND").With("user_id", userID).Wrap(err)
		}
	}
	return nil
}

func rateLimited(userID string, n int, window time.Duration) error {
	return oops.Code("OTP_RATE_LIMITED").
		With("user_id", userID).
		With("issued", n).
		Public(fmt.Sprintf("Too many codes requested, try again in %s", window)).
		Wrap(ErrRateLimited)
}
