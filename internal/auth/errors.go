package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for a wrong password, failed bind or
	// unknown user. Callers must not surface anything more specific.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive is returned when the account exists but is disabled.
	// At the HTTP boundary it renders like ErrInvalidCredentials.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrAccountMismatched is returned when the account's recorded auth
	// method disagrees with the attempted one, for example a directory bind
	// for an account without the directory flag.
	ErrAccountMismatched = errors.New("account auth method mismatch")

	// ErrAuthMethodConflict is returned when a single sign-on login would
	// require a disallowed auth method transition on an existing account.
	ErrAuthMethodConflict = errors.New("auth method transition not allowed")

	// ErrExternalService is returned when a directory or identity provider
	// is unreachable or responds malformed.
	ErrExternalService = errors.New("external authentication service failure")

	// ErrUnknownUserInfo is returned when a verified identity value has no
	// recognized provenance.
	ErrUnknownUserInfo = errors.New("unknown verified identity type")

	// ErrNoIDToken is returned when the OAuth2 token response doesn't contain an ID token.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrUserNotFound is returned when a directory search yields no entry.
	ErrUserNotFound = errors.New("user not found")

	// ErrMultipleUsersFound is returned when a directory search expected one
	// entry but found several. This usually means a misconfigured filter.
	ErrMultipleUsersFound = errors.New("multiple users found")
)
