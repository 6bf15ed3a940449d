// Package oidc implements the OpenID Connect login flow: redirect to the
// provider with a state token pinned to the session, then verify the
// callback, provision the user and finish the login.
package oidc

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

const (
	// LoginPath is the path to initiate OIDC login.
	LoginPath = "/auth/oidc/login"

	// CallbackPath is the path for the OIDC callback.
	CallbackPath = "/auth/oidc/callback"
)

// MsgLoginFailed is the generic notice for any failed SSO login.
const MsgLoginFailed = "Single sign-on login failed"

// Service is the OIDC handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the OIDC handler.
var Handler = Service{}

// Init initializes the OIDC handler. With the provider disabled no routes
// are registered.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || deps == nil {
		return handler.ErrNilDeps
	}

	s.deps = deps

	if deps.OIDC == nil {
		log.Info().Msg("OIDC authentication is disabled by configuration")

		return nil
	}

	app.Get(LoginPath, s.Login)
	app.Get(CallbackPath, s.Callback)

	log.Info().Msg("OIDC authentication provider initialized")

	return nil
}

// Login starts the flow. The state token lands in the session so the
// callback can only complete in the browser context that started it.
func (s *Service) Login(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	state := uuid.NewString()
	sess.OAuthState = state

	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
	}

	return c.Redirect(s.deps.OIDC.AuthCodeURL(state, s.redirectURL(c)))
}

// redirectURL resolves the callback URL the provider sends the user back to.
// An explicitly configured URL wins; otherwise it is derived from the
// request, honoring the scheme a TLS terminating proxy advertises so the
// provider is not handed an http URL for an https deployment.
func (s *Service) redirectURL(c *fiber.Ctx) string {
	if configured := s.deps.Cfg.Auth.OIDC.RedirectURL; configured != "" {
		return configured
	}

	return handler.ExternalURL(c, CallbackPath)
}

// Callback verifies state and token, provisions the user and completes the
// login. A disallowed auth method transition is refused, not papered over.
func (s *Service) Callback(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	state := c.Query("state")
	if state == "" || sess.OAuthState == "" || state != sess.OAuthState {
		log.Warn().Str("ip", c.IP()).Msg("oidc callback with unknown state")

		return s.fail(c, sessionID, sess)
	}

	// One shot per state value.
	sess.OAuthState = ""

	info, err := s.deps.OIDC.HandleCallback(c.Context(), c.Query("code"), s.redirectURL(c))
	if err != nil {
		log.Error().Err(err).Msg("oidc callback rejected")

		return s.fail(c, sessionID, sess)
	}

	user, err := s.deps.Provisioner.Provision(info)
	if err != nil {
		if errors.Is(err, auth.ErrAuthMethodConflict) {
			log.Warn().Str("username", info.Username).Msg("oidc login refused, account governed elsewhere")
		} else {
			log.Error().Err(err).Str("username", info.Username).Msg("oidc provisioning failed")
		}

		return s.fail(c, sessionID, sess)
	}

	if s.deps.Cfg.Auth.MFA.Enabled && user.HasTOTP() {
		sess.PendingUserID = user.ID
		sess.UserLogin = user.Username
		sess.Authenticated = false

		if err = s.deps.Sessions.Write(sessionID, sess); err != nil {
			log.Error().Err(err).Msg("failed to write session")

			return s.fail(c, sessionID, sess)
		}

		return c.Redirect("/mfa")
	}

	return handler.CompleteLogin(c, s.deps, sessionID, sess, user, true)
}

func (s *Service) fail(c *fiber.Ctx, sessionID string, sess *session.Data) error {
	sess.AddFlash(session.ClassError, MsgLoginFailed)

	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Redirect("/login")
}
