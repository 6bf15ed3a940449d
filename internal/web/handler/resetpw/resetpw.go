// Package resetpw implements the self-service password reset pages. The
// request flow answers identically whether or not the email belongs to an
// account; the gate behind it decides silently.
package resetpw

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

var validate = validator.New()

const (
	// Path is the path to the reset request page.
	Path = "/resetpw"

	// RequestTemplate renders the email form.
	RequestTemplate = "reset_request"

	// ConfirmTemplate renders the new password form.
	ConfirmTemplate = "reset_confirm"
)

// Flash messages of the reset flow.
const (
	MsgRequestAccepted  = "If the address belongs to an account, a reset mail is on its way"
	MsgTokenInvalid     = "This reset link is invalid or has expired"
	MsgResetDone        = "Your password has been changed, you can log in now"
	MsgPasswordEmpty    = "Please enter a new password"
	MsgPasswordTooShort = "The new password must be at least 8 characters long"
)

// Service is the password reset handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the password reset handler.
var Handler = Service{}

// Init initializes the password reset handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || deps == nil {
		return handler.ErrNilDeps
	}

	s.deps = deps

	app.Route(Path, func(router fiber.Router) {
		router.Get(handler.RouterRootPath, s.GetRequest)
		router.Post(handler.RouterRootPath, s.PostRequest)
		router.Get("/:token", s.GetConfirm)
		router.Post("/:token", s.PostConfirm)
	})

	return nil
}

// GetRequest renders the email form.
func (s *Service) GetRequest(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	messages := sess.PopFlash()
	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Render(RequestTemplate, fiber.Map{
		"Title":     s.deps.Cfg.Title,
		"CSRFToken": s.deps.CSRF.Issue(sessionID),
		"Messages":  messages,
	}, handler.BaseLayout)
}

// PostRequest accepts the email and always flashes the same notice.
func (s *Service) PostRequest(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	if !s.deps.CSRF.Validate(sessionID, c.FormValue("_token")) {
		log.Warn().Str("ip", c.IP()).Msg("reset request csrf validation failed")

		return s.flashAndRedirect(c, sessionID, sess, session.ClassError, "Invalid CSRF token", Path)
	}

	// Malformed addresses skip the gate but still get the same notice.
	email := c.FormValue("email")
	if validate.Var(email, "required,email") == nil {
		if _, err := s.deps.Gate.CreateResetRequest(c.Context(), email, c.IP()); err != nil {
			log.Error().Err(err).Msg("reset request infrastructure failure")
		}
	}

	// The notice is identical for every outcome.
	return s.flashAndRedirect(c, sessionID, sess, session.ClassInfo, MsgRequestAccepted, Path)
}

// GetConfirm validates the token and renders the new password form.
func (s *Service) GetConfirm(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	token := c.Params("token")

	user, err := s.deps.Gate.ValidateToken(token, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("reset token validation failure")
	}

	if user == nil {
		return s.flashAndRedirect(c, sessionID, sess, session.ClassError, MsgTokenInvalid, Path)
	}

	messages := sess.PopFlash()
	if errWrite := s.deps.Sessions.Write(sessionID, sess); errWrite != nil {
		log.Error().Err(errWrite).Msg("failed to write session")
	}

	return c.Render(ConfirmTemplate, fiber.Map{
		"Title":     s.deps.Cfg.Title,
		"CSRFToken": s.deps.CSRF.Issue(sessionID),
		"Token":     token,
		"Messages":  messages,
	}, handler.BaseLayout)
}

// PostConfirm consumes the token and sets the new password.
func (s *Service) PostConfirm(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	token := c.Params("token")

	if !s.deps.CSRF.Validate(sessionID, c.FormValue("_token")) {
		log.Warn().Str("ip", c.IP()).Msg("reset confirm csrf validation failed")

		return s.flashAndRedirect(c, sessionID, sess, session.ClassError, "Invalid CSRF token", Path)
	}

	password := c.FormValue("password")
	if password == "" {
		return s.flashAndRedirect(c, sessionID, sess, session.ClassError, MsgPasswordEmpty, Path+"/"+token)
	}

	if validate.Var(password, "min=8") != nil {
		return s.flashAndRedirect(c, sessionID, sess, session.ClassError, MsgPasswordTooShort, Path+"/"+token)
	}

	done, err := s.deps.Gate.CompleteReset(token, password, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("reset completion infrastructure failure")
	}

	if !done {
		return s.flashAndRedirect(c, sessionID, sess, session.ClassError, MsgTokenInvalid, Path)
	}

	return s.flashAndRedirect(c, sessionID, sess, session.ClassSuccess, MsgResetDone, "/login")
}

func (s *Service) flashAndRedirect(
	c *fiber.Ctx,
	sessionID string,
	sess *session.Data,
	class, msg, to string,
) error {
	sess.AddFlash(class, msg)

	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Redirect(to)
}
