// Package daemon boots the application: database, session storage, redis,
// the DNS control plane probe and finally the web service.
package daemon

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	sessionmysql "github.com/gofiber/storage/mysql/v2"
	sessionpostgres "github.com/gofiber/storage/postgres/v3"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/db/dsn"
	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/dnscontrol"
	"github.com/zonewarden/zonewarden/internal/web"
)

// ErrUnsupportedDBDriver is returned for a driver other than mysql or postgres.
var ErrUnsupportedDBDriver = errors.New("unsupported database driver")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
}

// Start starts the Daemon's web service and blocks until shutdown.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err = db.AutoMigrate(
		&models.User{},
		&models.PasswordResetToken{},
		&models.AgreementAcceptance{},
		&models.APIKey{},
	); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	seed(cfg, db)

	storage, err := sessionStorage(cfg)
	if err != nil {
		return nil, err
	}

	var redisClient redis.UniversalClient

	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err = redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, login attempt limiting degraded")
		}
	} else {
		log.Warn().Msg("no redis configured, login attempt limiting disabled")
	}

	probeControlPlane(cfg)

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, db, storage, redisClient),
	}, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB.Driver {
	case "mysql":
		return gorm.Open(gormmysql.Open(dsn.Create(cfg)), &gorm.Config{})
	case "postgres":
		return gorm.Open(gormpostgres.Open(dsn.Create(cfg)), &gorm.Config{})
	default:
		return nil, errors.Wrap(ErrUnsupportedDBDriver, cfg.DB.Driver)
	}
}

// sessionStorage opens the server side session backend on the same database
// the application uses.
func sessionStorage(cfg *config.Config) (fiber.Storage, error) {
	switch cfg.DB.Driver {
	case "mysql":
		return sessionmysql.New(sessionmysql.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         "sessions",
		}), nil
	case "postgres":
		return sessionpostgres.New(sessionpostgres.Config{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			Username: cfg.DB.User,
			Password: cfg.DB.Password,
			Database: cfg.DB.Name,
			Table:    "sessions",
		}), nil
	default:
		return nil, errors.Wrap(ErrUnsupportedDBDriver, cfg.DB.Driver)
	}
}

// probeControlPlane checks the PowerDNS API once at startup so a broken
// endpoint shows up in the log immediately, not on the first page view.
func probeControlPlane(cfg *config.Config) {
	if cfg.PowerDNS.APIServerURL == "" {
		log.Warn().Msg("no PowerDNS API configured, zone overview disabled")

		return
	}

	if err := dnscontrol.Open(&cfg.PowerDNS).Test(); err != nil {
		log.Warn().Err(err).Msg("PowerDNS API unreachable")

		return
	}

	log.Info().Msg("PowerDNS API connection verified")
}
