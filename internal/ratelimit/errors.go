package ratelimit

import "errors"

var (
	// ErrRateLimited is returned when an attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
