// Package web assembles the fiber application: template engine, access
// logging, the session and API middlewares and all page handlers.
package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/csrf"
	"github.com/zonewarden/zonewarden/internal/dnscontrol"
	loggeradapter "github.com/zonewarden/zonewarden/internal/logger/adapter/fiber"
	"github.com/zonewarden/zonewarden/internal/passreset"
	"github.com/zonewarden/zonewarden/internal/ratelimit"
	"github.com/zonewarden/zonewarden/internal/recaptcha"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	"github.com/zonewarden/zonewarden/internal/web/handler/agreement"
	oidchandler "github.com/zonewarden/zonewarden/internal/web/handler/auth/oidc"
	samlhandler "github.com/zonewarden/zonewarden/internal/web/handler/auth/saml"
	"github.com/zonewarden/zonewarden/internal/web/handler/dashboard"
	"github.com/zonewarden/zonewarden/internal/web/handler/login"
	"github.com/zonewarden/zonewarden/internal/web/handler/logout"
	"github.com/zonewarden/zonewarden/internal/web/handler/mfa"
	"github.com/zonewarden/zonewarden/internal/web/handler/resetpw"
	"github.com/zonewarden/zonewarden/internal/web/middleware/apikey"
	authmw "github.com/zonewarden/zonewarden/internal/web/middleware/auth"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

// CheckAlivePath answers load balancer health checks.
const CheckAlivePath = "/checkalive"

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	deps         *handler.Deps
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration. storage backs
// the server side sessions; redisClient backs the attempt limiter and may
// be nil when no redis is configured.
func New(cfg *config.Config, db *gorm.DB, storage fiber.Storage, redisClient redis.UniversalClient) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	httpFS := http.FS(templateEmbedFS{embeddedTemplates})
	templateEngine := html.NewFileSystem(httpFS, ".gohtml")

	// in debug mode, use local filesystem for templates
	if cfg.DevMode {
		templateEngine = html.New("./internal/web/templates", ".gohtml")
		templateEngine.ShouldReload = true

		log.Warn().Msg("debug mode enabled: using local filesystem for templates")
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        "ZoneWarden",
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
			Views:          templateEngine,
		},
	)

	app.Use(loggeradapter.New(loggeradapter.Config{
		Config:        cfg.Log,
		CheckAliveURI: CheckAlivePath,
	}))

	app.Use("/static",
		filesystem.New(
			filesystem.Config{
				Root:       http.FS(embeddedStaticFiles),
				PathPrefix: "static",
				Browse:     false,
			},
		),
	)

	deps := buildDeps(cfg, db, storage, redisClient)

	app.Use(authmw.New(deps))

	service := &Service{
		cfg:  cfg,
		App:  app,
		deps: deps,
	}
	service.alive.Store(true)

	app.Get(CheckAlivePath, func(c *fiber.Ctx) error {
		if !service.alive.Load() {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		return c.SendStatus(fiber.StatusOK)
	})

	for name, h := range map[string]handler.Service{
		"login":     &login.Handler,
		"logout":    &logout.Handler,
		"mfa":       &mfa.Handler,
		"agreement": &agreement.Handler,
		"dashboard": &dashboard.Handler,
		"resetpw":   &resetpw.Handler,
		"oidc":      &oidchandler.Handler,
		"saml":      &samlhandler.Handler,
	} {
		if err := h.Init(app, deps); err != nil {
			log.Fatal().Err(err).Str("handler", name).Msg(handler.ErrNilDepsFatalLogMsg)
		}
	}

	registerAPI(app, deps)

	// redirect root to dashboard
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/dashboard")
	})

	return service
}

// buildDeps wires the auth components. Disabled providers stay nil.
func buildDeps(cfg *config.Config, db *gorm.DB, storage fiber.Storage, redisClient redis.UniversalClient) *handler.Deps {
	deps := &handler.Deps{
		Cfg:         cfg,
		DB:          db,
		Sessions:    session.NewService(storage, cfg.Webserver.Session.ExpiryTime),
		CSRF:        csrf.NewService(cfg.Webserver.CookieAuthKey),
		Captcha:     recaptcha.New(&cfg.Auth.Recaptcha),
		Cache:       auth.NewCache(cfg.Webserver.Session.AuthCacheTimeout),
		SQL:         auth.NewSQLVerifier(db),
		Provisioner: auth.NewProvisioner(db),
	}

	if redisClient != nil {
		deps.Limiter = ratelimit.New(redisClient, ratelimit.Config{
			MaxAttempts: cfg.Auth.RateLimit.MaxAttempts,
			Window:      cfg.Auth.RateLimit.Window,
		})
	}

	if cfg.Auth.LDAP.Enabled {
		ldapVerifier, err := auth.NewLDAPVerifier(&cfg.Auth.LDAP, db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize ldap verifier")
		}

		deps.LDAP = ldapVerifier
	}

	if cfg.Auth.OIDC.Enabled {
		oidcVerifier, err := auth.NewOIDCVerifier(context.Background(), &cfg.Auth.OIDC)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize oidc verifier, oidc login disabled")
		} else {
			deps.OIDC = oidcVerifier
		}
	}

	if cfg.Auth.SAML.Enabled {
		samlVerifier, err := auth.NewSAMLVerifier(context.Background(), &cfg.Auth.SAML)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize saml verifier, saml login disabled")
		} else {
			deps.SAML = samlVerifier
		}
	}

	deps.Gate = passreset.NewGate(
		db,
		passreset.NewTokenRepository(db),
		passreset.NewSMTPMailer(&cfg.Auth.PasswordReset),
		deps.Limiter,
		cfg.Auth.PasswordReset.TokenLifetime,
		cfg.Webserver.URL+resetpw.Path+"/",
	)

	if cfg.PowerDNS.APIServerURL != "" {
		deps.Plane = dnscontrol.Open(&cfg.PowerDNS)
	}

	return deps
}

// registerAPI mounts the key authenticated JSON API over the control plane.
func registerAPI(app *fiber.App, deps *handler.Deps) {
	api := app.Group("/api", apikey.New(apikey.Config{
		DB:   deps.DB,
		SQL:  deps.SQL,
		Mode: apikey.ModeAPIKey,
	}))

	planeUnavailable := func(c *fiber.Ctx, err error) error {
		log.Error().Err(err).Str("path", c.Path()).Msg("control plane request failed")

		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   true,
			"message": "control plane unavailable",
		})
	}

	requirePlane := func(c *fiber.Ctx) error {
		if deps.Plane == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   true,
				"message": "dns control plane not configured",
			})
		}

		return c.Next()
	}

	api.Use(requirePlane)

	api.Get("/zones", func(c *fiber.Ctx) error {
		zones, err := deps.Plane.ListZones(c.Context())
		if err != nil {
			return planeUnavailable(c, err)
		}

		return c.JSON(zones)
	})

	api.Post("/zones/:zone/rectify", func(c *fiber.Ctx) error {
		if err := deps.Plane.RectifyZone(c.Context(), c.Params("zone")); err != nil {
			return planeUnavailable(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Post("/zones/:zone/dnssec", func(c *fiber.Ctx) error {
		if err := deps.Plane.SecureZone(c.Context(), c.Params("zone")); err != nil {
			return planeUnavailable(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Delete("/zones/:zone/dnssec", func(c *fiber.Ctx) error {
		if err := deps.Plane.UnsecureZone(c.Context(), c.Params("zone")); err != nil {
			return planeUnavailable(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Get("/zones/:zone/keys", func(c *fiber.Ctx) error {
		keys, err := deps.Plane.ListKeys(c.Context(), c.Params("zone"))
		if err != nil {
			return planeUnavailable(c, err)
		}

		return c.JSON(keys)
	})

	api.Delete("/zones/:zone/keys/:id", func(c *fiber.Ctx) error {
		keyID, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "invalid key id",
			})
		}

		if err = deps.Plane.DeleteKey(c.Context(), c.Params("zone"), keyID); err != nil {
			return planeUnavailable(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	})
}
