// Package agreement renders the user agreement and records acceptance. The
// auth middleware sends freshly logged in users here until the current
// version is accepted.
package agreement

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/web/handler"
)

const (
	// Path is the path to the agreement page.
	Path = "/agreement"

	// TemplateName is the agreement template.
	TemplateName = "agreement"
)

// Service is the agreement handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the agreement handler.
var Handler = Service{}

// Init initializes the agreement handler.
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

// Get renders the agreement page.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	if sess.UserID == 0 {
		return c.Redirect("/login")
	}

	return c.Render(TemplateName, fiber.Map{
		"Title":     s.deps.Cfg.Title,
		"Version":   s.deps.Cfg.Auth.Agreement.Version,
		"CSRFToken": s.deps.CSRF.Issue(sessionID),
	}, handler.BaseLayout)
}

// Post records acceptance of the current version.
func (s *Service) Post(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	if sess.UserID == 0 {
		return c.Redirect("/login")
	}

	if !s.deps.CSRF.Validate(sessionID, c.FormValue("_token")) {
		log.Warn().Uint64("user_id", sess.UserID).Msg("agreement csrf validation failed")

		return c.Redirect(Path)
	}

	acceptance := models.AgreementAcceptance{
		UserID:     sess.UserID,
		Version:    s.deps.Cfg.Auth.Agreement.Version,
		AcceptedAt: time.Now(),
		AcceptedIP: c.IP(),
	}

	if err := s.deps.DB.Create(&acceptance).Error; err != nil {
		// A duplicate acceptance from a double submit is fine.
		log.Debug().Err(err).Uint64("user_id", sess.UserID).Msg("agreement acceptance insert failed")
	}

	sess.AgreementOK = true

	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	log.Info().Uint64("user_id", sess.UserID).Int("version", acceptance.Version).
		Msg("user agreement accepted")

	return c.Redirect("/dashboard")
}
