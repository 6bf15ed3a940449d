// Package models contains database model definitions.
package models

import "time"

// PasswordResetToken is a single-use token mailed to a user so they can set a
// new local password. Tokens are stored hashed; the plain value only ever
// leaves the system inside the reset mail.
type PasswordResetToken struct {
	ID uint64 `gorm:"primaryKey"`
	// TokenHash is the SHA-256 hex digest of the mailed token.
	TokenHash string `gorm:"unique;size:64;not null"`
	UserID    uint64 `gorm:"index;not null"`
	Email     string `gorm:"size:255;not null"`
	ExpiresAt time.Time
	// Used marks a consumed token. Consumed tokens never validate again.
	Used      bool
	CreatedIP string `gorm:"size:45"`
	CreatedAt time.Time
}

// Expired reports whether the token lifetime has passed at the given instant.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
