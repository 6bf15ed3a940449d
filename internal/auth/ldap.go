package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/db/models"
)

// ErrLDAPDisabled is returned when LDAP authentication is disabled via configuration.
var ErrLDAPDisabled = errors.New("ldap authentication is disabled")

// LDAPVerifier authenticates users by binding against a directory server.
// A successful bind alone is not enough: the local user row must exist, be
// active and be flagged for directory authentication.
type LDAPVerifier struct {
	config *config.LDAPAuth
	db     *gorm.DB
}

// NewLDAPVerifier creates a directory verifier.
func NewLDAPVerifier(cfg *config.LDAPAuth, db *gorm.DB) (*LDAPVerifier, error) {
	if !cfg.Enabled {
		return nil, ErrLDAPDisabled
	}

	if cfg.UsernameAttr == "" {
		cfg.UsernameAttr = "uid"
	}

	if cfg.EmailAttr == "" {
		cfg.EmailAttr = "mail"
	}

	if cfg.NameAttr == "" {
		cfg.NameAttr = "cn"
	}

	if cfg.UserFilter == "" {
		cfg.UserFilter = "(uid={username})"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10
	}

	return &LDAPVerifier{config: cfg, db: db}, nil
}

// Verify binds against the directory as the given user and, on success,
// validates the account's local mirror row. Directory reachability problems
// map to ErrExternalService; a failed bind or missing entry maps to
// ErrInvalidCredentials.
func (v *LDAPVerifier) Verify(username, password string) (*models.User, error) {
	conn, err := v.connect()
	if err != nil {
		log.Error().Err(err).Str("host", v.config.Host).Msg("ldap connect failed")

		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close LDAP connection")
		}
	}()

	if v.config.BindDN != "" {
		if err = conn.Bind(v.config.BindDN, v.config.BindPassword); err != nil {
			log.Error().Err(err).Msg("ldap service bind failed")

			return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
		}
	}

	entry, err := v.searchUserEntry(conn, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrMultipleUsersFound) {
			log.Info().Err(err).Str("username", username).Msg("ldap user lookup failed")

			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	if err = conn.Bind(entry.DN, password); err != nil {
		log.Info().Str("username", username).Msg("ldap bind rejected")

		return nil, ErrInvalidCredentials
	}

	return v.ValidateUserActiveStatus(username)
}

// ValidateUserActiveStatus checks the local mirror of a directory account.
// The row must exist, be active, and be flagged for directory
// authentication either via the recorded method or the legacy UseLDAP flag.
func (v *LDAPVerifier) ValidateUserActiveStatus(username string) (*models.User, error) {
	var user models.User

	err := v.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Str("username", username).Msg("ldap bind succeeded but no local user row exists")

		return nil, ErrInvalidCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if !user.Active {
		log.Warn().Str("username", username).Msg("ldap login attempt for inactive account")

		return nil, ErrAccountInactive
	}

	if user.AuthMethod != models.AuthMethodLDAP && !user.UseLDAP {
		log.Warn().Str("username", username).
			Str("auth_method", string(user.AuthMethod)).
			Msg("ldap login attempt for account not flagged for ldap")

		return nil, ErrAccountMismatched
	}

	return &user, nil
}

// connect establishes a connection to the directory server.
func (v *LDAPVerifier) connect() (*ldap.Conn, error) {
	hostPort := net.JoinHostPort(v.config.Host, strconv.Itoa(v.config.Port))

	var ldapURL string
	if v.config.UseSSL {
		ldapURL = "ldaps://" + hostPort
	} else {
		ldapURL = "ldap://" + hostPort
	}

	var tlsConfig *tls.Config
	if v.config.UseSSL || v.config.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: v.config.SkipVerify, //nolint:gosec // skipping verifying tls is ok
			ServerName:         v.config.Host,
		}
	}

	conn, err := ldap.DialURL(ldapURL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if !v.config.UseSSL && v.config.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			if errClose := conn.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("failed to close LDAP connection")
			}

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	if v.config.Timeout > 0 {
		conn.SetTimeout(time.Duration(v.config.Timeout) * time.Second)
	}

	return conn, nil
}

// searchUserEntry searches the directory for the given username and returns
// a single entry.
func (v *LDAPVerifier) searchUserEntry(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	userFilter := strings.ReplaceAll(v.config.UserFilter, "{username}", ldap.EscapeFilter(username))
	searchRequest := ldap.NewSearchRequest(
		v.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // Size limit
		v.config.Timeout,
		false,
		userFilter,
		[]string{
			v.config.UsernameAttr,
			v.config.EmailAttr,
			v.config.NameAttr,
			"dn",
		},
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search for user: %w", err)
	}

	switch len(searchResult.Entries) {
	case 0:
		return nil, ErrUserNotFound
	case 1:
		return searchResult.Entries[0], nil
	default:
		return nil, ErrMultipleUsersFound
	}
}
