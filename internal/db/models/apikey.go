package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// APIKey is a non-interactive credential for the JSON API. The plain key is
// shown once at creation time; only its Argon2id hash is stored. The prefix
// is kept in clear so a presented key can be looked up without scanning.
type APIKey struct {
	ID uint64 `gorm:"primaryKey"`
	// Prefix is the first characters of the key, used for lookup.
	Prefix string `gorm:"unique;size:16;not null"`
	// KeyHash is the Argon2id hash of the full key.
	KeyHash     string `gorm:"size:255;not null"`
	UserID      uint64 `gorm:"index;not null"`
	Description string `gorm:"size:255"`
	Active      bool
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// VerifyKey checks a presented plain key against the stored hash.
func (k *APIKey) VerifyKey(plain string) bool {
	match, err := argon2id.ComparePasswordAndHash(plain, k.KeyHash)
	if err != nil {
		log.Error().Msgf("failed to verify api key: %v", err)
		return false
	}

	return match
}
