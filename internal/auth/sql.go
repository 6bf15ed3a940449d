package auth

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/db/models"
)

// SQLVerifier checks a username and password against the local database.
type SQLVerifier struct {
	db *gorm.DB
}

// NewSQLVerifier creates a local database verifier.
func NewSQLVerifier(db *gorm.DB) *SQLVerifier {
	return &SQLVerifier{db: db}
}

// Verify looks up an active, locally governed account and compares the
// password against its Argon2id hash. Every failure reason collapses to
// ErrInvalidCredentials toward the caller; the specific reason is only
// logged. Inactive accounts return ErrAccountInactive, which the HTTP layer
// renders identically.
func (v *SQLVerifier) Verify(username, password string) (*models.User, error) {
	var user models.User

	err := v.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Info().Str("username", username).Msg("login attempt for unknown user")

		return nil, ErrInvalidCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	// Externally governed accounts never authenticate with a local password.
	if user.AuthMethod.External() || user.UseLDAP {
		log.Warn().Str("username", username).
			Str("auth_method", string(user.AuthMethod)).
			Msg("password login attempt for externally governed account")

		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		log.Warn().Str("username", username).Msg("login attempt for inactive account")

		return nil, ErrAccountInactive
	}

	if !user.VerifyPassword(password) {
		log.Info().Str("username", username).Msg("wrong password")

		return nil, ErrInvalidCredentials
	}

	return &user, nil
}
