package auth

// OIDCUserInfo is the verified identity extracted from an OIDC ID token.
// The Subject is the stable identifier at the provider.
type OIDCUserInfo struct {
	Subject    string
	Username   string
	Email      string
	Name       string
	Groups     []string
	ProviderID string
}

// SAMLUserInfo is the verified identity extracted from a SAML assertion.
// NameID plus SessionIndex identify the IdP session.
type SAMLUserInfo struct {
	NameID       string
	SessionIndex string
	Username     string
	Email        string
	Name         string
	Groups       []string
	ProviderID   string
}
