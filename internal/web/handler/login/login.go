package login

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

const (
	// Path is the path to the login page.
	Path = "/login"

	// TemplateName is the login page template.
	TemplateName = "login"
)

// Service is the login handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the login handler.
var Handler = Service{}

// form is the submitted login form.
type form struct {
	Username  string `form:"username"`
	Password  string `form:"password"`
	Token     string `form:"_token"`
	Recaptcha string `form:"g-recaptcha-response"`
	UserLang  string `form:"userlang"`
}

// Init initializes the login handler.
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

// Get renders the login page with a fresh CSRF token and any pending flash
// messages.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	messages := sess.PopFlash()
	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Render(TemplateName, fiber.Map{
		"Title":            s.deps.Cfg.Title,
		"CSRFToken":        s.deps.CSRF.Issue(sessionID),
		"Messages":         messages,
		"LocalDBEnabled":   s.deps.Cfg.Auth.LocalDB.Enabled,
		"LDAPEnabled":      s.deps.Cfg.Auth.LDAP.Enabled,
		"OIDCEnabled":      s.deps.Cfg.Auth.OIDC.Enabled,
		"SAMLEnabled":      s.deps.Cfg.Auth.SAML.Enabled,
		"RecaptchaEnabled": s.deps.Cfg.Auth.Recaptcha.Enabled,
		"RecaptchaSiteKey": s.deps.Cfg.Auth.Recaptcha.SiteKey,
	}, handler.BaseLayout)
}

// Post handles the login form submission. Security gates run before any
// credential is looked at, in a fixed order: CSRF, captcha, non-empty
// password, attempt limiter. Every rejection becomes a flash message and a
// redirect back to the form; nothing here returns an error page for a
// normal failure.
func (s *Service) Post(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	f := new(form)
	if err := c.BodyParser(f); err != nil {
		return s.reject(c, sessionID, sess, session.ClassError, MsgInvalidCredentials)
	}

	if !s.deps.CSRF.Validate(sessionID, f.Token) {
		log.Warn().Str("username", f.Username).Str("ip", c.IP()).Msg("login csrf validation failed")

		return s.reject(c, sessionID, sess, session.ClassError, MsgInvalidCSRF)
	}

	if !s.deps.Captcha.Verify(c.Context(), f.Recaptcha, c.IP()) {
		log.Warn().Str("username", f.Username).Str("ip", c.IP()).Msg("login captcha rejected")

		return s.reject(c, sessionID, sess, session.ClassError, MsgCaptchaFailed)
	}

	if f.Password == "" {
		return s.reject(c, sessionID, sess, session.ClassError, MsgEmptyPassword)
	}

	if err := s.deps.Limiter.CheckLogin(c.Context(), f.Username, c.IP()); err != nil {
		log.Warn().Str("username", f.Username).Str("ip", c.IP()).Msg("login rate limited")

		return s.reject(c, sessionID, sess, session.ClassError, MsgTooManyAttempts)
	}

	if f.UserLang != "" {
		sess.Lang = f.UserLang
	}

	user, err := s.verify(c, sess, f)
	if err != nil {
		if recordErr := s.deps.Limiter.RecordFailedLogin(c.Context(), f.Username, c.IP()); recordErr != nil {
			log.Warn().Err(recordErr).Msg("failed to record login attempt")
		}

		// Inactive, mismatched, unknown and wrong-password all render the
		// same generic message.
		return s.reject(c, sessionID, sess, session.ClassError, MsgInvalidCredentials)
	}

	if s.deps.Cfg.Auth.MFA.Enabled && user.HasTOTP() {
		sess.PendingUserID = user.ID
		sess.UserLogin = user.Username
		sess.Authenticated = false

		if err = s.deps.Sessions.Write(sessionID, sess); err != nil {
			log.Error().Err(err).Msg("failed to write session")

			return s.reject(c, sessionID, sess, session.ClassError, MsgInternalError)
		}

		return c.Redirect("/mfa")
	}

	return handler.CompleteLogin(c, s.deps, sessionID, sess, user, s.ldapGoverned(f.Username))
}

// verify dispatches to the directory or local verifier depending on how the
// account is governed. For directory accounts a still valid cache entry
// skips the bind.
func (s *Service) verify(c *fiber.Ctx, sess *session.Data, f *form) (*models.User, error) {
	if s.deps.LDAP != nil && s.ldapGoverned(f.Username) {
		if s.deps.Cache.Valid(sess, time.Now(), c.IP()) && sess.UserLogin == f.Username {
			log.Debug().Str("username", f.Username).Msg("directory bind skipped, cache valid")

			return s.deps.LDAP.ValidateUserActiveStatus(f.Username)
		}

		return s.deps.LDAP.Verify(f.Username, f.Password)
	}

	if !s.deps.Cfg.Auth.LocalDB.Enabled {
		log.Warn().Str("username", f.Username).Msg("local login attempted while disabled")

		return nil, auth.ErrInvalidCredentials
	}

	return s.deps.SQL.Verify(f.Username, f.Password)
}

// ldapGoverned checks whether the account behind the username is directory
// governed. Unknown usernames stay on the local branch so their failure is
// indistinguishable from a wrong local password.
func (s *Service) ldapGoverned(username string) bool {
	if !s.deps.Cfg.Auth.LDAP.Enabled {
		return false
	}

	var user models.User

	err := s.deps.DB.Where("username = ?", username).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("failed to query user")
		}

		return false
	}

	return user.AuthMethod == models.AuthMethodLDAP || user.UseLDAP
}

// reject stores a flash message and sends the browser back to the form.
func (s *Service) reject(c *fiber.Ctx, sessionID string, sess *session.Data, class, msg string) error {
	sess.AddFlash(class, msg)

	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Redirect(Path)
}
