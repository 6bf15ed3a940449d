// Package dashboard renders the landing page after login with a zone
// overview from the DNS control plane.
package dashboard

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/web/handler"
)

const (
	// Path is the path to the dashboard.
	Path = "/dashboard"

	// TemplateName is the dashboard template.
	TemplateName = "dashboard"
)

// Service is the dashboard handler service.
type Service struct {
	deps *handler.Deps
}

// Handler is the dashboard handler.
var Handler = Service{}

// Init initializes the dashboard handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || deps == nil {
		return handler.ErrNilDeps
	}

	s.deps = deps

	app.Get(Path, s.Get)

	return nil
}

// Get renders the dashboard. A control plane outage degrades to an empty
// zone list with a warning instead of an error page.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID, sess := handler.SessionFromCtx(c)

	zoneCount := 0
	secureCount := 0

	if s.deps.Plane != nil {
		zones, err := s.deps.Plane.ListZones(c.Context())
		if err != nil {
			log.Warn().Err(err).Msg("failed to list zones for dashboard")
		} else {
			zoneCount = len(zones)

			for _, z := range zones {
				if z.DNSSEC {
					secureCount++
				}
			}
		}
	}

	messages := sess.PopFlash()
	if err := s.deps.Sessions.Write(sessionID, sess); err != nil {
		log.Error().Err(err).Msg("failed to write session")
	}

	return c.Render(TemplateName, fiber.Map{
		"Title":       s.deps.Cfg.Title,
		"Username":    sess.UserLogin,
		"Messages":    messages,
		"ZoneCount":   zoneCount,
		"SecureCount": secureCount,
	}, handler.BaseLayout)
}
