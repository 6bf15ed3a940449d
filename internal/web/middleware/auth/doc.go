// Package auth is the session middleware guarding the browser facing
// routes. API routes authenticate through the apikey middleware instead.
package auth
