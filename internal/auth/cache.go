package auth

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/web/session"
)

// Cache decides whether a recent successful external verification stored in
// the session may stand in for a fresh directory bind. A zero or negative
// timeout disables caching entirely.
type Cache struct {
	Timeout time.Duration
}

// NewCache creates a cache with the given reuse timeout.
func NewCache(timeout time.Duration) *Cache {
	return &Cache{Timeout: timeout}
}

// Valid reports whether the session's cached verification may be reused for
// a request from ip at the given instant. All five conditions must hold:
// caching enabled, session fully authenticated, entry younger than the
// timeout, same source IP, and the cached username matching the session's
// current login. Authenticated is checked strictly so a session holding a
// candidate user with a second factor outstanding never passes. Any mismatch
// is a silent fall-through to full re-verification, never an error.
func (c *Cache) Valid(s *session.Data, now time.Time, ip string) bool {
	if c == nil || c.Timeout <= 0 {
		return false
	}

	if s == nil || !s.Authenticated {
		return false
	}

	if s.AuthTimestamp == 0 {
		return false
	}

	elapsed := now.Sub(time.Unix(s.AuthTimestamp, 0))
	if elapsed < 0 || elapsed >= c.Timeout {
		return false
	}

	if s.AuthIP == "" || s.AuthIP != ip {
		return false
	}

	if s.AuthUsername == "" || s.AuthUsername != s.UserLogin {
		return false
	}

	return true
}

// Update stamps the current time, source IP and username into the session
// cache fields. Only called after a fresh, full verification succeeded.
func (c *Cache) Update(s *session.Data, now time.Time, ip string) {
	s.AuthTimestamp = now.Unix()
	s.AuthIP = ip
	s.AuthUsername = s.UserLogin

	log.Debug().Str("ip", ip).Str("username", s.UserLogin).Msg("authentication cache updated")
}

// Invalidate clears the cache fields. Called on logout or an explicit
// re-authentication request.
func (c *Cache) Invalidate(s *session.Data) {
	s.AuthTimestamp = 0
	s.AuthIP = ""
	s.AuthUsername = ""
}
