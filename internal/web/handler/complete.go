package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

// CompleteLogin marks the session fully authenticated for the given user and
// redirects to the dashboard. It is the single place Authenticated flips to
// true; the login and MFA handlers both end here once every required factor
// succeeded. externallyVerified stamps the authentication cache so the next
// directory bind can be skipped within the cache window.
func CompleteLogin(
	c *fiber.Ctx,
	deps *Deps,
	sessionID string,
	sess *session.Data,
	user *models.User,
	externallyVerified bool,
) error {
	now := time.Now()

	sess.UserID = user.ID
	sess.UserLogin = user.Username
	sess.PendingUserID = 0
	sess.Authenticated = true
	sess.LastMod = now.Unix()
	sess.AgreementOK = agreementAccepted(deps, user)

	if externallyVerified {
		deps.Cache.Update(sess, now, c.IP())
	}

	if err := deps.Limiter.ResetLogin(c.Context(), user.Username, c.IP()); err != nil {
		log.Warn().Err(err).Msg("failed to reset login attempt counters")
	}

	// Rotate the session ID on the privilege change so an ID handed out (or
	// planted) before authentication never names an authenticated session.
	freshID, err := session.GenerateSessionID()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate session id")

		return c.Status(fiber.StatusInternalServerError).Render("error", fiber.Map{
			"Error": "Internal server error",
		}, BaseLayout)
	}

	if err := deps.Sessions.Destroy(sessionID); err != nil {
		log.Warn().Err(err).Msg("failed to destroy pre-login session")
	}

	session.SetCookie(c, freshID)

	if err := deps.Sessions.Write(freshID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")

		return c.Status(fiber.StatusInternalServerError).Render("error", fiber.Map{
			"Error": "Internal server error",
		}, BaseLayout)
	}

	log.Info().Str("username", user.Username).Uint64("user_id", user.ID).
		Str("ip", c.IP()).Msg("login successful")

	return c.Redirect("/dashboard")
}

// agreementAccepted reports whether the user already accepted the current
// agreement version. With the agreement feature disabled everyone passes.
func agreementAccepted(deps *Deps, user *models.User) bool {
	if !deps.Cfg.Auth.Agreement.Enabled {
		return true
	}

	var acceptance models.AgreementAcceptance

	err := deps.DB.Where("user_id = ? AND version = ?", user.ID, deps.Cfg.Auth.Agreement.Version).
		First(&acceptance).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("failed to query agreement acceptance")
		}

		return false
	}

	return true
}
