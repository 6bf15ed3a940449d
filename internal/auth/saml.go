package auth

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"

	"github.com/zonewarden/zonewarden/internal/config"
)

// ErrSAMLDisabled is returned when SAML is disabled via configuration.
var ErrSAMLDisabled = errors.New("saml authentication is disabled")

// SAMLVerifier validates SAML responses from a configured identity
// provider. Like the OIDC verifier it produces a typed SAMLUserInfo; account
// reconciliation happens in the provisioner.
type SAMLVerifier struct {
	config *config.SAMLAuth
	sp     *saml.ServiceProvider
}

// NewSAMLVerifier creates a SAML service provider, fetching the IdP
// metadata from the configured URL. The fetch is bounded by the configured
// timeout.
func NewSAMLVerifier(ctx context.Context, cfg *config.SAMLAuth) (*SAMLVerifier, error) {
	if !cfg.Enabled {
		return nil, ErrSAMLDisabled
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	metadataURL, err := url.Parse(cfg.IDPMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("invalid idp metadata url: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metadata, err := samlsp.FetchMetadata(fetchCtx, &http.Client{Timeout: timeout}, *metadataURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch idp metadata: %v", ErrExternalService, err)
	}

	acsURL, err := url.Parse(cfg.ACSURL)
	if err != nil {
		return nil, fmt.Errorf("invalid acs url: %w", err)
	}

	sp := &saml.ServiceProvider{
		EntityID:    cfg.EntityID,
		AcsURL:      *acsURL,
		IDPMetadata: metadata,
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		keyPair, errLoad := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if errLoad != nil {
			return nil, fmt.Errorf("failed to load sp key pair: %w", errLoad)
		}

		cert, errParse := x509.ParseCertificate(keyPair.Certificate[0])
		if errParse != nil {
			return nil, fmt.Errorf("failed to parse sp certificate: %w", errParse)
		}

		key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("sp private key is not RSA")
		}

		sp.Key = key
		sp.Certificate = cert
	}

	return &SAMLVerifier{config: cfg, sp: sp}, nil
}

// AuthnRequestURL builds the redirect URL starting a login at the IdP and
// returns it together with the request ID. The caller stores the ID so the
// response can be matched back.
func (v *SAMLVerifier) AuthnRequestURL(relayState string) (string, string, error) {
	req, err := v.sp.MakeAuthenticationRequest(
		v.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding),
		saml.HTTPRedirectBinding,
		saml.HTTPPostBinding,
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to build authn request: %w", err)
	}

	redirect, err := req.Redirect(relayState, v.sp)
	if err != nil {
		return "", "", fmt.Errorf("failed to build redirect url: %w", err)
	}

	return redirect.String(), req.ID, nil
}

// ParseResponse validates the base64 encoded SAMLResponse form value against
// the IdP metadata and the possible request IDs, and extracts the verified
// identity. A response that fails validation maps to ErrInvalidCredentials.
func (v *SAMLVerifier) ParseResponse(encodedResponse string, possibleRequestIDs []string) (*SAMLUserInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedResponse)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed saml response encoding", ErrInvalidCredentials)
	}

	assertion, err := v.sp.ParseXMLResponse(raw, possibleRequestIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: saml response rejected: %v", ErrInvalidCredentials, err)
	}

	return userInfoFromAssertion(assertion, v.config.ProviderID), nil
}

// userInfoFromAssertion maps assertion subject, session index and attribute
// statements onto a SAMLUserInfo.
func userInfoFromAssertion(assertion *saml.Assertion, providerID string) *SAMLUserInfo {
	info := &SAMLUserInfo{ProviderID: providerID}

	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		info.NameID = assertion.Subject.NameID.Value
	}

	if len(assertion.AuthnStatements) > 0 {
		info.SessionIndex = assertion.AuthnStatements[0].SessionIndex
	}

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			applyAttribute(info, attr)
		}
	}

	if info.Username == "" {
		info.Username = info.NameID
	}

	return info
}

func applyAttribute(info *SAMLUserInfo, attr saml.Attribute) {
	values := make([]string, 0, len(attr.Values))
	for _, v := range attr.Values {
		values = append(values, v.Value)
	}

	if len(values) == 0 {
		return
	}

	switch attributeName(attr) {
	case "uid", "username":
		info.Username = values[0]
	case "mail", "email", "emailaddress":
		info.Email = values[0]
	case "cn", "displayname", "name":
		info.Name = values[0]
	case "groups", "memberof":
		info.Groups = append(info.Groups, values...)
	}
}

// attributeName prefers the friendly name, falling back to the raw name.
// Comparison is done lowercased.
func attributeName(attr saml.Attribute) string {
	name := attr.FriendlyName
	if name == "" {
		name = attr.Name
	}

	return strings.ToLower(name)
}
