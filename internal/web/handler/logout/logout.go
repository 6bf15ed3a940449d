// Package logout destroys the session and sends the browser back to the
// login page with a notice.
package logout

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

// Path is the path to the logout endpoint.
const Path = "/logout"

// MsgLoggedOut is the notice shown on the login page after logout.
const MsgLoggedOut = "You have logged out successfully"

// Service is the logout handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the logout handler.
var Handler = Service{}

// Init initializes the logout handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || deps == nil {
		return handler.ErrNilDeps
	}

	s.deps = deps

	app.Get(Path, s.Get)

	return nil
}

// Get destroys the session. The old session record is removed server side
// so the cookie value is worthless afterwards; a fresh session only carries
// the notice.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	if sess.UserID != 0 {
		log.Info().Uint64("user_id", sess.UserID).Str("username", sess.UserLogin).
			Msg("user logged out")
	}

	if err := s.deps.Sessions.Destroy(sessionID); err != nil {
		log.Error().Err(err).Msg("failed to destroy session")
	}

	fresh := &session.Data{Lang: sess.Lang}
	fresh.AddFlash(session.ClassInfo, MsgLoggedOut)

	if err := s.deps.Sessions.Write(sessionID, fresh); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Redirect("/login")
}
