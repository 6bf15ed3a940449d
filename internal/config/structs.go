package config

import (
	"time"

	"github.com/zonewarden/zonewarden/internal/logger"
)

// Session settings.
type Session struct {
	// ExpiryTime is the idle timeout after which a session is expired.
	ExpiryTime time.Duration
	// AuthCacheTimeout bounds how long a successful external verification may
	// be reused without re-verifying. Zero or negative disables the cache.
	AuthCacheTimeout time.Duration
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Auth      Auth
	Redis     Redis
	PowerDNS  PowerDNS
}

// Webserver implement webserver settings.
type Webserver struct {
	Domain        string  // domain name for the webserver
	Port          int     // listening port for the webserver
	ShutDownTime  int     // wait time for shutdown
	URL           string  // base url for the webserver
	CookieAuthKey string  // key for signing CSRF tokens bound to the session
	Session       Session // session settings
}

// DB holds the relational database settings.
type DB struct {
	Driver   string // mysql or postgres
	User     string
	Password string
	Host     string
	Port     int
	Name     string
	Extras   string
}

// Redis holds the redis settings used by the login attempt limiter.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// PowerDNS holds the DNS control plane API settings.
type PowerDNS struct {
	APIServerURL string
	VHost        string
	APIKey       string
}

// LocalDBAuth enables username/password login against the local database.
type LocalDBAuth struct {
	Enabled bool
}

// LDAPAuth holds directory bind settings.
type LDAPAuth struct {
	Enabled      bool
	Host         string
	Port         int
	UseSSL       bool
	UseTLS       bool
	SkipVerify   bool
	BindDN       string
	BindPassword string
	BaseDN       string
	UserFilter   string
	UsernameAttr string
	EmailAttr    string
	NameAttr     string
	Timeout      int // seconds
}

// OIDCAuth holds OpenID Connect settings.
type OIDCAuth struct {
	Enabled      bool
	ProviderID   string
	ProviderURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	GroupsClaim  string
}

// SAMLAuth holds SAML service provider settings.
type SAMLAuth struct {
	Enabled        bool
	ProviderID     string
	EntityID       string
	ACSURL         string
	IDPMetadataURL string
	CertFile       string
	KeyFile        string
	Timeout        int // seconds for metadata fetch
}

// Recaptcha holds the reCAPTCHA gate settings for the login form.
type Recaptcha struct {
	Enabled   bool
	SiteKey   string
	SecretKey string
	VerifyURL string
	Timeout   int // seconds
}

// MFA holds the second factor settings.
type MFA struct {
	Enabled bool
	Issuer  string
}

// RateLimit holds the login attempt limiter settings.
type RateLimit struct {
	MaxAttempts int
	Window      time.Duration
}

// PasswordReset holds the self-service password reset settings.
type PasswordReset struct {
	TokenLifetime time.Duration
	MaxRequests   int
	Window        time.Duration
	MailFrom      string
	SMTPHost      string
	SMTPPort      int
}

// Agreement holds the user agreement settings.
type Agreement struct {
	Enabled bool
	Version int
}

// Auth bundles all authentication settings.
type Auth struct {
	LocalDB       LocalDBAuth
	LDAP          LDAPAuth
	OIDC          OIDCAuth
	SAML          SAMLAuth
	Recaptcha     Recaptcha
	MFA           MFA
	RateLimit     RateLimit
	PasswordReset PasswordReset
	Agreement     Agreement
}
