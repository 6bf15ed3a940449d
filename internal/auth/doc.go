// Package auth implements credential verification against the local
// database, LDAP directories and OIDC/SAML identity providers, the rules
// governing transitions between those methods, the session scoped cache of a
// recent external verification, and just-in-time provisioning of single
// sign-on users.
package auth
