// Package passreset implements self-service password reset with an
// anti-enumeration contract: the outward response never reveals whether an
// account exists or how it authenticates. Externally governed accounts
// (ldap, oidc, saml) are silently refused a token; their passwords live at
// the identity provider.
package passreset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/ratelimit"
	"github.com/zonewarden/zonewarden/internal/uniuri"
)

// Eligibility is the internal diagnostic result of CanUserResetPassword.
// Unlike the outward flows it does name the concrete auth method; it is
// only for authenticated admin-facing surfaces.
type Eligibility struct {
	Allowed    bool
	UserID     uint64
	AuthMethod models.AuthMethod
}

// Gate decides reset eligibility, issues tokens and validates them.
type Gate struct {
	db            *gorm.DB
	tokens        TokenRepository
	mailer        Mailer
	limiter       *ratelimit.Limiter
	tokenLifetime time.Duration
	resetBaseURL  string
}

// NewGate creates a reset gate. resetBaseURL is the public URL the token is
// appended to in the mail.
func NewGate(
	db *gorm.DB,
	tokens TokenRepository,
	mailer Mailer,
	limiter *ratelimit.Limiter,
	tokenLifetime time.Duration,
	resetBaseURL string,
) *Gate {
	if tokenLifetime <= 0 {
		tokenLifetime = time.Hour
	}

	return &Gate{
		db:            db,
		tokens:        tokens,
		mailer:        mailer,
		limiter:       limiter,
		tokenLifetime: tokenLifetime,
		resetBaseURL:  resetBaseURL,
	}
}

// CanUserResetPassword reports whether the account behind the email may
// self-service reset its password. Accounts governed by ldap, oidc or saml
// are blocked; sql and legacy accounts without a recorded method are
// allowed. A missing account reports allowed with no user ID so even this
// internal surface stays shaped uniformly.
func (g *Gate) CanUserResetPassword(email string) (Eligibility, error) {
	var user models.User

	err := g.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Eligibility{Allowed: true}, nil
	}

	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to query user: %w", err)
	}

	return Eligibility{
		Allowed:    !user.AuthMethod.External(),
		UserID:     user.ID,
		AuthMethod: user.AuthMethod,
	}, nil
}

// CreateResetRequest handles an outward reset request. It always reports
// true so the caller's response is identical for nonexistent accounts,
// externally governed accounts and successful requests. A token is created
// and mailed only for eligible accounts within the rate budget. Only an
// infrastructure failure surfaces as an error.
func (g *Gate) CreateResetRequest(ctx context.Context, email, ip string) (bool, error) {
	var user models.User

	err := g.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Info().Str("email", email).Msg("password reset requested for unknown email")

		return true, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}

	if user.AuthMethod.External() {
		log.Warn().Str("email", email).Uint64("user_id", user.ID).
			Str("auth_method", string(user.AuthMethod)).
			Msg("password reset request blocked for externally governed account")

		return true, nil
	}

	if !user.Active {
		log.Warn().Str("email", email).Uint64("user_id", user.ID).
			Msg("password reset request for inactive account")

		return true, nil
	}

	allowed, err := g.limiter.AllowResetRequest(ctx, email, ip)
	if err != nil {
		return false, err
	}

	if !allowed {
		log.Warn().Str("email", email).Str("ip", ip).Msg("password reset request rate limited")

		return true, nil
	}

	plain := uniuri.NewLen(uniuri.TokenLen)
	token := &models.PasswordResetToken{
		TokenHash: HashToken(plain),
		UserID:    user.ID,
		Email:     email,
		ExpiresAt: time.Now().Add(g.tokenLifetime),
		CreatedIP: ip,
		CreatedAt: time.Now(),
	}

	if err = g.tokens.Create(token); err != nil {
		return false, fmt.Errorf("failed to store reset token: %w", err)
	}

	if err = g.mailer.SendResetMail(email, g.resetBaseURL+plain); err != nil {
		return false, fmt.Errorf("failed to send reset mail: %w", err)
	}

	log.Info().Str("email", email).Uint64("user_id", user.ID).Msg("password reset token issued")

	return true, nil
}

// ValidateToken resolves a presented token to its user. It returns nil for
// an unknown, used or expired token, and re-checks the account's auth
// method at validation time: a user whose method changed to an external one
// between request and use is blocked here too.
func (g *Gate) ValidateToken(plain string, now time.Time) (*models.User, error) {
	token, err := g.tokens.FindByTokenHash(HashToken(plain))
	if err != nil {
		return nil, fmt.Errorf("failed to look up reset token: %w", err)
	}

	if token == nil || token.Used || token.Expired(now) {
		return nil, nil
	}

	var user models.User
	if err = g.db.First(&user, token.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if user.AuthMethod.External() {
		log.Warn().Str("email", token.Email).Uint64("user_id", user.ID).
			Str("auth_method", string(user.AuthMethod)).
			Msg("password reset validation blocked for externally governed account")

		return nil, nil
	}

	if !user.Active {
		return nil, nil
	}

	return &user, nil
}

// CompleteReset consumes the token and sets the new password. The token is
// validated again immediately before use.
func (g *Gate) CompleteReset(plain, newPassword string, now time.Time) (bool, error) {
	user, err := g.ValidateToken(plain, now)
	if err != nil {
		return false, err
	}

	if user == nil {
		return false, nil
	}

	token, err := g.tokens.FindByTokenHash(HashToken(plain))
	if err != nil || token == nil {
		return false, err
	}

	if err = g.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("password", models.HashPassword(newPassword)).Error; err != nil {
		return false, fmt.Errorf("failed to update password: %w", err)
	}

	if err = g.tokens.MarkUsed(token.ID); err != nil {
		return false, fmt.Errorf("failed to mark token used: %w", err)
	}

	log.Info().Uint64("user_id", user.ID).Msg("password reset completed")

	return true, nil
}
