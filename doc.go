// Package main provides the entry point for the ZoneWarden administration
// console. It starts a web server using the Fiber framework that lets
// operators manage PowerDNS zones behind a database-backed login. The core of
// the service is the authentication and session-trust subsystem: credential
// verification against SQL, LDAP, OIDC and SAML sources, server-side session
// lifecycle, authentication-result caching and external-auth-aware password
// reset gating.
package main
