// Package mfa implements the second factor step. Sessions arrive here with
// a pending user and leave fully authenticated or not at all.
package mfa

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

const (
	// Path is the path to the second factor page.
	Path = "/mfa"

	// TemplateName is the code entry template.
	TemplateName = "mfa"
)

// MsgInvalidCode is flashed when the submitted code does not verify.
const MsgInvalidCode = "Invalid verification code"

// Service is the second factor handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the second factor handler.
var Handler = Service{}

// Init initializes the second factor handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || deps == nil {
		return handler.ErrNilDeps
	}

	s.deps = deps

	app.Route(Path, func(router fiber.Router) {
		router.Get(handler.RouterRootPath, s.Get)
		router.Post(handler.RouterRootPath, s.Post)
	})

	return nil
}

// Get renders the code entry form. Without a pending user there is nothing
// to verify and the browser goes back to the login page.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	if sess.PendingUserID == 0 {
		return c.Redirect("/login")
	}

	messages := sess.PopFlash()
	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Render(TemplateName, fiber.Map{
		"Title":     s.deps.Cfg.Title,
		"CSRFToken": s.deps.CSRF.Issue(sessionID),
		"Messages":  messages,
	}, handler.BaseLayout)
}

// Post verifies the submitted code against the pending user's secret.
func (s *Service) Post(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	if sess.PendingUserID == 0 {
		return c.Redirect("/login")
	}

	if !s.deps.CSRF.Validate(sessionID, c.FormValue("_token")) {
		log.Warn().Str("ip", c.IP()).Msg("mfa csrf validation failed")

		return s.reject(c, sessionID, sess)
	}

	var user models.User
	if err := s.deps.DB.First(&user, sess.PendingUserID).Error; err != nil {
		log.Error().Err(err).Uint64("user_id", sess.PendingUserID).Msg("failed to load pending user")

		return s.reject(c, sessionID, sess)
	}

	if !user.Active || !auth.ValidateTOTP(c.FormValue("code"), user.TOTPSecret) {
		log.Warn().Str("username", user.Username).Str("ip", c.IP()).Msg("mfa code rejected")

		return s.reject(c, sessionID, sess)
	}

	externallyVerified := user.AuthMethod.External() || user.UseLDAP

	return handler.CompleteLogin(c, s.deps, sessionID, sess, &user, externallyVerified)
}

func (s *Service) reject(c *fiber.Ctx, sessionID string, sess *session.Data) error {
	sess.AddFlash(session.ClassError, MsgInvalidCode)

	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Redirect(Path)
}
