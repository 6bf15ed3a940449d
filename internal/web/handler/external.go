package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zonewarden/zonewarden/internal/auth"
)

// ExternalURL builds the absolute URL the client used for the given path.
// Behind a TLS terminating reverse proxy the local scheme reads http while
// the client spoke https; the advertised scheme and forwarded host win over
// the local request metadata so a legitimately proxied request is not built
// into an http URL the provider would reject.
func ExternalURL(c *fiber.Ctx, path string) string {
	get := func(key string) string { return c.Get(key) }

	host := c.Hostname()
	if fwd := c.Get("X-Forwarded-Host"); fwd != "" && auth.BehindReverseProxy(get) {
		host = fwd
	}

	return auth.EffectiveScheme(c.Protocol(), get) + "://" + host + path
}
