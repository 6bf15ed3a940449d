// Package handler holds the shared pieces of the web handlers: the service
// interface they implement and the dependency bundle they are wired with.
package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/csrf"
	"github.com/zonewarden/zonewarden/internal/dnscontrol"
	"github.com/zonewarden/zonewarden/internal/passreset"
	"github.com/zonewarden/zonewarden/internal/ratelimit"
	"github.com/zonewarden/zonewarden/internal/recaptcha"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

// ErrNilDeps is returned by Init when the app or dependency bundle is nil.
var ErrNilDeps = errors.New("app or deps is nil")

// Deps bundles everything a handler may need. The SSO verifiers are nil
// when their provider is disabled.
type Deps struct {
	Cfg         *config.Config
	DB          *gorm.DB
	Sessions    *session.Service
	CSRF        *csrf.Service
	Limiter     *ratelimit.Limiter
	Captcha     *recaptcha.Verifier
	Cache       *auth.Cache
	SQL         *auth.SQLVerifier
	LDAP        *auth.LDAPVerifier
	OIDC        *auth.OIDCVerifier
	SAML        *auth.SAMLVerifier
	Provisioner *auth.Provisioner
	Gate        *passreset.Gate
	Plane       dnscontrol.Plane
}

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, deps *Deps) error
}

// Locals keys set by the auth middleware.
const (
	// LocalsSessionID carries the request's session ID.
	LocalsSessionID = "sessionID"
	// LocalsSessionData carries the request's *session.Data.
	LocalsSessionData = "sessionData"
)

// SessionFromCtx returns the session ID and data stored by the middleware.
func SessionFromCtx(c *fiber.Ctx) (string, *session.Data) {
	sessionID, _ := c.Locals(LocalsSessionID).(string)
	data, _ := c.Locals(LocalsSessionData).(*session.Data)

	if data == nil {
		data = &session.Data{}
	}

	return sessionID, data
}
