// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/BurntSushi/toml"
)

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		jsonConfigEnv string
		err           error
	)

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	if _, err = toml.DecodeFile(path+"main.toml", &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	// override it from env
	jsonConfigEnv = os.Getenv("ZONEWARDEN_CONFIG_JSON")

	if jsonConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, jsonConfigEnv)
		if err != nil {
			return c, err
		}
	}

	return c, Validate(&c)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to merge config from env")
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// Validate checks the settings the auth core can not run without.
// Security relevant settings are never silently defaulted: a missing
// session timeout or signing key is a startup error, not a fallback.
func Validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.CookieAuthKey == "" {
		return errors.Wrap(ErrEmptyCookieAuthKey, invalidErrMessage)
	}

	if c.Webserver.Session.ExpiryTime <= 0 {
		return errors.Wrap(ErrSessionExpiryNotSet, invalidErrMessage)
	}

	if c.Auth.LDAP.Enabled && c.Auth.LDAP.Host == "" {
		return errors.Wrap(ErrLDAPHostMissing, invalidErrMessage)
	}

	if c.Auth.OIDC.Enabled && (c.Auth.OIDC.ProviderURL == "" || c.Auth.OIDC.ClientID == "") {
		return errors.Wrap(ErrOIDCIncomplete, invalidErrMessage)
	}

	if c.Auth.SAML.Enabled && c.Auth.SAML.IDPMetadataURL == "" {
		return errors.Wrap(ErrSAMLIncomplete, invalidErrMessage)
	}

	if c.Auth.Recaptcha.Enabled && c.Auth.Recaptcha.SecretKey == "" {
		return errors.Wrap(ErrRecaptchaSecretMissing, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if c.Auth.RateLimit.MaxAttempts == 0 {
		c.Auth.RateLimit.MaxAttempts = 5
	}

	if c.Auth.RateLimit.Window == 0 {
		c.Auth.RateLimit.Window = 15 * time.Minute
	}

	return nil
}
