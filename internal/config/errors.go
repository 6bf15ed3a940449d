package config

import "errors"

var (
	// ErrWebServerPortCanNotBeZero is returned if the webserver port is unset.
	ErrWebServerPortCanNotBeZero = errors.New("webserver port can not be 0")

	// ErrEmptyURL is returned if the webserver base url is unset.
	ErrEmptyURL = errors.New("webserver url can not be empty")

	// ErrEmptyCookieAuthKey is returned if no CSRF signing key was configured.
	ErrEmptyCookieAuthKey = errors.New("webserver cookieAuthKey can not be empty")

	// ErrSessionExpiryNotSet is returned if the session idle timeout is unset.
	ErrSessionExpiryNotSet = errors.New("session expiryTime can not be 0")

	// ErrLDAPHostMissing is returned when LDAP is enabled without a host.
	ErrLDAPHostMissing = errors.New("ldap enabled but host is empty")

	// ErrOIDCIncomplete is returned when OIDC is enabled without provider url or client id.
	ErrOIDCIncomplete = errors.New("oidc enabled but providerURL or clientID is empty")

	// ErrSAMLIncomplete is returned when SAML is enabled without IdP metadata.
	ErrSAMLIncomplete = errors.New("saml enabled but idpMetadataURL is empty")

	// ErrRecaptchaSecretMissing is returned when reCAPTCHA is enabled without a secret.
	ErrRecaptchaSecretMissing = errors.New("recaptcha enabled but secretKey is empty")
)
