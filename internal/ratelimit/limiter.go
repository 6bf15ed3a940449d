// Package ratelimit tracks failed login and password reset attempts in
// fixed windows backed by redis counters. Increments are atomic, so
// concurrent failures from several requests never lose counts.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the attempt budget per window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter enforces per-username and per-IP budgets. A nil Limiter is a
// no-op, so callers running without redis need no branching.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a limiter backed by the given redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin reports whether the username and IP are still within the
// failed-login budget. It never increments.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}

	if err := l.checkCounter(ctx, loginUserKey(username)); err != nil {
		return err
	}

	return l.checkCounter(ctx, loginIPKey(ip))
}

// RecordFailedLogin counts a failed attempt for both the username and the
// source IP.
func (l *Limiter) RecordFailedLogin(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, loginUserKey(username))
	if err != nil {
		return err
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	count, err = l.incrementWithTTL(ctx, loginIPKey(ip))
	if err != nil {
		return err
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ResetLogin clears the counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}

	if err := l.redis.Del(ctx, loginUserKey(username), loginIPKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// AllowResetRequest counts a password reset request against its own budget
// and reports whether this one is still allowed. Unlike the login counters
// the reset counter is incremented on every request, successful or not.
func (l *Limiter) AllowResetRequest(ctx context.Context, email, ip string) (bool, error) {
	if l == nil {
		return true, nil
	}

	count, err := l.incrementWithTTL(ctx, resetKey(email))
	if err != nil {
		return false, err
	}

	if count > int64(l.config.MaxAttempts) {
		return false, nil
	}

	count, err = l.incrementWithTTL(ctx, resetIPKey(ip))
	if err != nil {
		return false, err
	}

	return count <= int64(l.config.MaxAttempts), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func loginUserKey(username string) string { return "ratelimit:login:user:" + username }
func loginIPKey(ip string) string         { return "ratelimit:login:ip:" + ip }
func resetKey(email string) string        { return "ratelimit:reset:email:" + email }
func resetIPKey(ip string) string         { return "ratelimit:reset:ip:" + ip }
