package auth

import "github.com/zonewarden/zonewarden/internal/db/models"

// ShouldUpdateAuthMethod decides whether a login through newMethod may
// overwrite the auth method recorded on an existing account. It is a pure
// decision table, evaluated in order:
//
//  1. no recorded method yet: allow (first-time provisioning)
//  2. same method: allow (idempotent refresh)
//  3. sql to oidc/saml: deny (a local password account is never silently
//     converted into an SSO managed one)
//  4. ldap to oidc/saml: deny (the directory stays authoritative)
//  5. oidc and saml in either direction: allow (lateral SSO transition)
//  6. anything else, including unknown recorded methods: deny
//
// The deny rules keep an attacker who can force an SSO login for a username
// from taking over an account governed by a password or a directory.
func ShouldUpdateAuthMethod(current, next models.AuthMethod) bool {
	isSSO := next == models.AuthMethodOIDC || next == models.AuthMethodSAML

	switch {
	case current == "":
		return true
	case current == next:
		return true
	case current == models.AuthMethodSQL && isSSO:
		return false
	case current == models.AuthMethodLDAP && isSSO:
		return false
	case current == models.AuthMethodOIDC && next == models.AuthMethodSAML:
		return true
	case current == models.AuthMethodSAML && next == models.AuthMethodOIDC:
		return true
	default:
		return false
	}
}

// DetermineAuthMethodFromUserInfo maps a verified identity value to its
// canonical auth method. Resolution goes by the concrete type, never by a
// provider id string, so an OIDC and a SAML provider sharing an id can not
// collide.
func DetermineAuthMethodFromUserInfo(info any) (models.AuthMethod, error) {
	switch info.(type) {
	case *OIDCUserInfo:
		return models.AuthMethodOIDC, nil
	case *SAMLUserInfo:
		return models.AuthMethodSAML, nil
	default:
		return "", ErrUnknownUserInfo
	}
}
