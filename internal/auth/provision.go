package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/db/models"
)

// Provisioner reconciles a verified single sign-on identity with the local
// user table. New users are created just in time; existing users are only
// rebound when the auth method transition rules allow it.
type Provisioner struct {
	db *gorm.DB
}

// NewProvisioner creates a provisioner on the given database.
func NewProvisioner(db *gorm.DB) *Provisioner {
	return &Provisioner{db: db}
}

// Provision finds or creates the local account for a verified identity.
// info must be an *OIDCUserInfo or *SAMLUserInfo. A login that would require
// a disallowed method transition on an existing account is refused with
// ErrAuthMethodConflict instead of hijacking the account.
func (p *Provisioner) Provision(info any) (*models.User, error) {
	method, err := DetermineAuthMethodFromUserInfo(info)
	if err != nil {
		return nil, err
	}

	username, email, name, externalID := identityFields(info)
	if username == "" {
		return nil, fmt.Errorf("%w: identity carries no username", ErrInvalidCredentials)
	}

	var user models.User

	err = p.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Active:     true,
			Username:   username,
			Email:      email,
			Fullname:   name,
			AuthMethod: method,
			ExternalID: externalID,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}

		if err = p.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		log.Info().Str("username", username).Str("auth_method", string(method)).
			Msg("provisioned new sso user")

		return &user, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if !user.Active {
		log.Warn().Str("username", username).Msg("sso login attempt for inactive account")

		return nil, ErrAccountInactive
	}

	if !ShouldUpdateAuthMethod(user.AuthMethod, method) {
		log.Warn().Str("username", username).
			Str("current_method", string(user.AuthMethod)).
			Str("attempted_method", string(method)).
			Msg("refusing sso login requiring a disallowed auth method transition")

		return nil, ErrAuthMethodConflict
	}

	user.AuthMethod = method
	user.Email = email
	user.Fullname = name
	user.ExternalID = externalID
	user.UpdatedAt = time.Now()

	if err = p.db.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return &user, nil
}

func identityFields(info any) (username, email, name, externalID string) {
	switch v := info.(type) {
	case *OIDCUserInfo:
		return v.Username, v.Email, v.Name, v.Subject
	case *SAMLUserInfo:
		return v.Username, v.Email, v.Name, v.NameID
	default:
		return "", "", "", ""
	}
}
