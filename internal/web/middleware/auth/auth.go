package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

// MsgSessionExpired is the notice shown after an idle timeout.
const MsgSessionExpired = "Your session has expired, please log in again"

// MsgLoggedOut is the notice shown after a logout via query parameter.
const MsgLoggedOut = "You have logged out successfully"

// publicPrefixes are reachable without an authenticated session. The mfa
// page is listed because its session is deliberately not authenticated yet.
var publicPrefixes = []string{
	"/login",
	"/logout",
	"/resetpw",
	"/auth/",
	"/mfa",
}

// agreementSkipPrefixes never trigger the agreement redirect, so accepting
// (or leaving) stays possible without a loop.
var agreementSkipPrefixes = []string{
	"/api",
	"/agreement",
	"/logout",
	"/mfa",
}

// New creates the session middleware. Per request it loads the session,
// handles the logout query parameter, expires idle sessions before
// refreshing the activity timestamp and finally redirects unauthenticated
// requests for protected pages to the login form.
func New(deps *handler.Deps) fiber.Handler {
	expiry := int64(deps.Cfg.Webserver.Session.ExpiryTime.Seconds())

	return func(c *fiber.Ctx) error {
		path := strings.ToLower(c.Path())

		if strings.HasPrefix(path, "/static") || path == "/checkalive" || strings.HasPrefix(path, "/api") {
			return c.Next()
		}

		sessionID, sess, err := deps.Sessions.FromCtx(c)
		if err != nil {
			log.Error().Err(err).Msg("failed to load session")

			return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
		}

		c.Locals(handler.LocalsSessionID, sessionID)
		c.Locals(handler.LocalsSessionData, sess)

		if c.Context().QueryArgs().Has("logout") && sess.UserID != 0 {
			return endSession(c, deps, sessionID, sess.Lang, MsgLoggedOut)
		}

		if sess.Authenticated {
			now := time.Now().Unix()

			// Expiry is checked before the activity timestamp is refreshed.
			if sess.LastMod != 0 && now-sess.LastMod > expiry {
				log.Info().Uint64("user_id", sess.UserID).Msg("session expired")

				return endSession(c, deps, sessionID, sess.Lang, MsgSessionExpired)
			}

			sess.LastMod = now
			if err = deps.Sessions.Write(sessionID, sess); err != nil {
				log.Error().Err(err).Msg("failed to write session")
			}

			if strings.HasPrefix(path, "/login") {
				return c.Redirect("/dashboard")
			}

			if deps.Cfg.Auth.Agreement.Enabled && !sess.AgreementOK && !skipAgreement(path) {
				return c.Redirect("/agreement")
			}

			return c.Next()
		}

		if isPublic(path) {
			return c.Next()
		}

		return c.Redirect("/login")
	}
}

// endSession destroys the server side record and leaves a fresh session
// carrying only the notice and the language choice.
func endSession(c *fiber.Ctx, deps *handler.Deps, sessionID, lang, notice string) error {
	if err := deps.Sessions.Destroy(sessionID); err != nil {
		log.Error().Err(err).Msg("failed to destroy session")
	}

	fresh := &session.Data{Lang: lang}
	fresh.AddFlash(session.ClassInfo, notice)

	if err := deps.Sessions.Write(sessionID, fresh); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Redirect("/login")
}

func isPublic(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

func skipAgreement(path string) bool {
	for _, prefix := range agreementSkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
