// Package saml implements the SAML login flow: an authentication request
// redirect to the IdP and the assertion consumer endpoint receiving the
// signed response.
package saml

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

const (
	// LoginPath is the path to initiate SAML login.
	LoginPath = "/auth/saml/login"

	// ACSPath is the assertion consumer service path the IdP posts to.
	ACSPath = "/auth/saml/acs"
)

// MsgLoginFailed is the generic notice for any failed SSO login.
const MsgLoginFailed = "Single sign-on login failed"

// Service is the SAML handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the SAML handler.
var Handler = Service{}

// Init initializes the SAML handler. With the provider disabled no routes
// are registered.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || deps == nil {
		return handler.ErrNilDeps
	}

	s.deps = deps

	if deps.SAML == nil {
		log.Info().Msg("SAML authentication is disabled by configuration")

		return nil
	}

	app.Get(LoginPath, s.Login)
	app.Post(ACSPath, s.ACS)

	log.Info().Msg("SAML authentication provider initialized")

	return nil
}

// Login redirects to the IdP. The request ID is pinned to the session so
// only a response to this exact request is accepted later.
func (s *Service) Login(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	redirectURL, requestID, err := s.deps.SAML.AuthnRequestURL("")
	if err != nil {
		log.Error().Err(err).Msg("failed to build saml authn request")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
	}

	sess.SAMLRequestID = requestID

	if err = s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
	}

	return c.Redirect(redirectURL)
}

// ACS consumes the IdP response, provisions the user and completes the
// login.
func (s *Service) ACS(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	var possibleRequestIDs []string
	if sess.SAMLRequestID != "" {
		possibleRequestIDs = []string{sess.SAMLRequestID}
	}

	// One shot per request ID.
	sess.SAMLRequestID = ""

	info, err := s.deps.SAML.ParseResponse(c.FormValue("SAMLResponse"), possibleRequestIDs)
	if err != nil {
		log.Warn().Err(err).Str("ip", c.IP()).Msg("saml response rejected")

		return s.fail(c, sessionID, sess)
	}

	user, err := s.deps.Provisioner.Provision(info)
	if err != nil {
		if errors.Is(err, auth.ErrAuthMethodConflict) {
			log.Warn().Str("username", info.Username).Msg("saml login refused, account governed elsewhere")
		} else {
			log.Error().Err(err).Str("username", info.Username).Msg("saml provisioning failed")
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
