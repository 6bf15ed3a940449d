package passreset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/db/models"
)

// TokenRepository persists reset tokens. Split out as an interface so the
// gate tests can count invocations.
type TokenRepository interface {
	Create(token *models.PasswordResetToken) error
	FindByTokenHash(hash string) (*models.PasswordResetToken, error)
	MarkUsed(id uint64) error
}

// GormTokenRepository stores tokens in the relational database.
type GormTokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a token repository on the given database.
func NewTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

// Create inserts a token row.
func (r *GormTokenRepository) Create(token *models.PasswordResetToken) error {
	return r.db.Create(token).Error
}

// FindByTokenHash looks up a token by its hash. Returns nil when absent.
func (r *GormTokenRepository) FindByTokenHash(hash string) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken

	err := r.db.Where("token_hash = ?", hash).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &token, nil
}

// MarkUsed flags a token as consumed.
func (r *GormTokenRepository) MarkUsed(id uint64) error {
	return r.db.Model(&models.PasswordResetToken{}).Where("id = ?", id).
		Update("used", true).Error
}

// HashToken returns the hex SHA-256 digest under which a plain token is
// stored and looked up.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))

	return hex.EncodeToString(sum[:])
}
