package daemon

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/db/models"
)

// seed creates the default admin account when the user table is empty, so a
// fresh installation can be logged into at all.
func seed(_ *config.Config, db *gorm.DB) {
	var count int64

	db.Model(&models.User{}).Count(&count)

	if count != 0 {
		return
	}

	err := db.Create(
		&models.User{
			Username:   "admin",
			Password:   models.HashPassword("changeme"),
			Active:     true,
			AuthMethod: models.AuthMethodSQL,
		},
	).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to seed admin user")

		return
	}

	log.Warn().Msg("seeded default admin user, change its password immediately")
}
