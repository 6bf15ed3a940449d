// Package apikey authenticates non-interactive API requests. A key may be
// presented as X-API-Key header, bearer token, basic auth credentials or
// the api_key query parameter.
package apikey

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/db/models"
)

// Mode selects how a failed authentication is answered.
type Mode string

const (
	// ModeAPIKey answers failures with a JSON body.
	ModeAPIKey Mode = "apikey"
	// ModeBasic answers failures with a WWW-Authenticate challenge.
	ModeBasic Mode = "basic"
)

// prefixLen is how many leading characters of a key form the lookup prefix.
const prefixLen = 8

// LocalsUserID is the locals key carrying the authenticated user's ID.
const LocalsUserID = "apiUserID"

// Config configures the middleware.
type Config struct {
	DB    *gorm.DB
	SQL   *auth.SQLVerifier
	Mode  Mode
	Realm string
}

// New creates the API authentication middleware.
func New(cfg Config) fiber.Handler {
	if cfg.Realm == "" {
		cfg.Realm = "zonewarden"
	}

	return func(c *fiber.Ctx) error {
		if key := presentedKey(c); key != "" {
			if userID, ok := verifyKey(cfg.DB, key); ok {
				c.Locals(LocalsUserID, userID)

				return c.Next()
			}

			log.Warn().Str("ip", c.IP()).Msg("api request with invalid key")

			return unauthorized(c, cfg)
		}

		if username, password, ok := basicCredentials(c); ok {
			user, err := cfg.SQL.Verify(username, password)
			if err == nil {
				c.Locals(LocalsUserID, user.ID)

				return c.Next()
			}

			log.Warn().Str("username", username).Str("ip", c.IP()).Msg("api basic auth rejected")

			return unauthorized(c, cfg)
		}

		return unauthorized(c, cfg)
	}
}

// presentedKey extracts an API key from the supported carriers.
func presentedKey(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}

	if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return c.Query("api_key")
}

func basicCredentials(c *fiber.Ctx) (string, string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, "Basic ") {
		return "", "", false
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return "", "", false
	}

	username, password, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", false
	}

	return username, password, true
}

// verifyKey resolves a plain key via its prefix and checks the stored hash.
func verifyKey(db *gorm.DB, plain string) (uint64, bool) {
	if len(plain) < prefixLen {
		return 0, false
	}

	var key models.APIKey

	err := db.Where("prefix = ? AND active = ?", plain[:prefixLen], true).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to query api key")

		return 0, false
	}

	if !key.VerifyKey(plain) {
		return 0, false
	}

	now := time.Now()
	if err = db.Model(&models.APIKey{}).Where("id = ?", key.ID).
		Update("last_used_at", &now).Error; err != nil {
		log.Warn().Err(err).Msg("failed to update api key usage timestamp")
	}

	return key.UserID, true
}

func unauthorized(c *fiber.Ctx, cfg Config) error {
	if cfg.Mode == ModeBasic {
		c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="`+cfg.Realm+`"`)

		return c.SendStatus(fiber.StatusUnauthorized)
	}

	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   true,
		"message": "authentication required",
		"code":    "auth_required",
	})
}
