package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// AuthMethod records how a user account authenticates. It is persisted on the
// user row and drives which verifier may log the account in, whether the
// password reset flow is open to the account, and how single sign-on logins
// are reconciled with existing accounts.
type AuthMethod string

const (
	// AuthMethodSQL indicates the user authenticates with a local database password.
	AuthMethodSQL AuthMethod = "sql"
	// AuthMethodLDAP indicates the user authenticates against a directory server.
	AuthMethodLDAP AuthMethod = "ldap"
	// AuthMethodOIDC indicates the user authenticates via OpenID Connect.
	AuthMethodOIDC AuthMethod = "oidc"
	// AuthMethodSAML indicates the user authenticates via SAML.
	AuthMethodSAML AuthMethod = "saml"
)

// KnownAuthMethods lists every persisted auth method value.
var KnownAuthMethods = []AuthMethod{AuthMethodSQL, AuthMethodLDAP, AuthMethodOIDC, AuthMethodSAML}

// External reports whether the method is verified by an identity provider
// rather than by a password stored in the local database.
func (m AuthMethod) External() bool {
	return m == AuthMethodLDAP || m == AuthMethodOIDC || m == AuthMethodSAML
}

// User represents a user account. Accounts may carry a local password, be
// bound to a directory, or be provisioned on first single sign-on login.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Active indicates whether the account may log in at all.
	Active bool
	// Username is the unique username for login.
	Username string `gorm:"unique;size:100;not null"`
	// Email is the user's email address.
	Email string `gorm:"size:255"`
	// Password is the Argon2id hashed password. Empty for accounts that never
	// had a local password set, such as SSO provisioned ones.
	Password string `gorm:"size:255"`
	// Fullname is the user's display name.
	Fullname string `gorm:"size:255"`
	// AuthMethod indicates how this user authenticates.
	AuthMethod AuthMethod `gorm:"type:varchar(20);not null;default:'sql'"`
	// UseLDAP marks accounts that must bind against the directory even when
	// their stored method still reads sql. Legacy migrations set this flag.
	UseLDAP bool
	// ExternalID is the stable identifier at the identity provider, the OIDC
	// sub claim or the SAML NameID.
	ExternalID string `gorm:"size:255"`
	// TOTPSecret holds the base32 secret when a second factor is enrolled.
	// Empty means no second factor.
	TOTPSecret string `gorm:"size:255"`
	// AgreementVersion is the user agreement version the user last accepted.
	AgreementVersion int
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
	// DeletedAt is the soft delete timestamp (nil if not deleted, managed by GORM).
	DeletedAt *time.Time
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
// It is used when creating or updating local user passwords.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the user's stored hash.
// An account without a stored hash never matches.
func (u *User) VerifyPassword(password string) bool {
	if u.Password == "" {
		return false
	}

	match, err := argon2id.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}

// HasTOTP reports whether a second factor is enrolled for the account.
func (u *User) HasTOTP() bool {
	return u.TOTPSecret != ""
}
