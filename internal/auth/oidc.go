package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/zonewarden/zonewarden/internal/config"
)

// ErrOIDCDisabled is returned when OIDC is disabled via configuration.
var ErrOIDCDisabled = errors.New("oidc authentication is disabled")

// OIDCVerifier validates OpenID Connect logins. It produces a typed
// OIDCUserInfo carrying the verified claims; reconciling that identity with
// a local account is the provisioner's job.
type OIDCVerifier struct {
	config   *config.OIDCAuth
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// NewOIDCVerifier creates an OIDC verifier, performing provider discovery.
func NewOIDCVerifier(ctx context.Context, cfg *config.OIDCAuth) (*OIDCVerifier, error) {
	if !cfg.Enabled {
		return nil, ErrOIDCDisabled
	}

	provider, err := oidc.NewProvider(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	return &OIDCVerifier{
		config:   cfg,
		provider: provider,
		verifier: verifier,
		oauth2:   oauth2Config,
	}, nil
}

// AuthCodeURL returns the provider authorization URL with the state token.
// A non-empty redirectURL overrides the configured one so a deployment
// behind a TLS terminating proxy can send the scheme the client actually
// used; the same value must then be passed to HandleCallback.
func (v *OIDCVerifier) AuthCodeURL(state, redirectURL string) string {
	if redirectURL == "" {
		return v.oauth2.AuthCodeURL(state)
	}

	return v.oauth2.AuthCodeURL(state, oauth2.SetAuthURLParam("redirect_uri", redirectURL))
}

// HandleCallback exchanges the authorization code, verifies the ID token and
// extracts the verified identity. The redirectURL must match the one the
// authorization request was built with. Provider failures wrap
// ErrExternalService; a token that fails verification maps to
// ErrInvalidCredentials.
func (v *OIDCVerifier) HandleCallback(ctx context.Context, code, redirectURL string) (*OIDCUserInfo, error) {
	var opts []oauth2.AuthCodeOption
	if redirectURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURL))
	}

	oauth2Token, err := v.oauth2.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange token: %v", ErrExternalService, err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, ErrNoIDToken
	}

	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id token rejected: %v", ErrInvalidCredentials, err)
	}

	var claims struct {
		Sub               string   `json:"sub"`
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
		Groups            []string `json:"groups"`
	}

	if err = idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	return &OIDCUserInfo{
		Subject:    claims.Sub,
		Username:   username,
		Email:      claims.Email,
		Name:       claims.Name,
		Groups:     v.groupsFromToken(idToken, claims.Groups),
		ProviderID: v.config.ProviderID,
	}, nil
}

// groupsFromToken determines the user's groups using the configured claim.
// It defaults to the provided defaultGroups and overrides them if a custom
// claim is set and present.
func (v *OIDCVerifier) groupsFromToken(idToken *oidc.IDToken, defaultGroups []string) []string {
	gc := v.config.GroupsClaim
	if gc == "" || gc == "groups" {
		return defaultGroups
	}

	var allClaims map[string]interface{}
	if err := idToken.Claims(&allClaims); err != nil {
		return defaultGroups
	}

	raw, ok := allClaims[gc].([]interface{})
	if !ok {
		return defaultGroups
	}

	groups := make([]string, 0, len(raw))

	for _, g := range raw {
		if s, strOK := g.(string); strOK {
			groups = append(groups, s)
		}
	}

	return groups
}
