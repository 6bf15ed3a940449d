package auth

import "strings"

// HeaderGetter looks up a request header value, empty when absent. It is a
// function so the detection logic stays independent of the HTTP framework.
type HeaderGetter func(key string) string

// BehindReverseProxy reports whether the request carries any of the common
// reverse proxy markers.
func BehindReverseProxy(get HeaderGetter) bool {
	for _, h := range []string{
		"X-Forwarded-Proto",
		"X-Forwarded-Host",
		"CF-Visitor",
		"X-Real-Ip",
		"Forwarded",
	} {
		if get(h) != "" {
			return true
		}
	}

	return false
}

// ProxyAdvertisesHTTPS reports whether a reverse proxy in front of the
// deployment claims the client connection is HTTPS.
func ProxyAdvertisesHTTPS(get HeaderGetter) bool {
	if strings.EqualFold(get("X-Forwarded-Proto"), "https") {
		return true
	}

	// Cloudflare sends CF-Visitor: {"scheme":"https"}.
	if strings.Contains(strings.ToLower(get("CF-Visitor")), `"scheme":"https"`) {
		return true
	}

	return forwardedProtoHTTPS(get("Forwarded"))
}

// EffectiveScheme returns the scheme the client actually used. When TLS is
// terminated at a proxy the local request reads http although the client
// spoke https; protocol sensitive checks such as the SAML destination must
// use the external scheme, not the local one.
func EffectiveScheme(localScheme string, get HeaderGetter) string {
	if localScheme == "https" {
		return "https"
	}

	if BehindReverseProxy(get) && ProxyAdvertisesHTTPS(get) {
		return "https"
	}

	return localScheme
}

// forwardedProtoHTTPS parses an RFC 7239 Forwarded header looking for
// proto=https in any element.
func forwardedProtoHTTPS(header string) bool {
	if header == "" {
		return false
	}

	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			k, v, found := strings.Cut(strings.TrimSpace(pair), "=")
			if !found || !strings.EqualFold(k, "proto") {
				continue
			}

			if strings.EqualFold(strings.Trim(v, `"`), "https") {
				return true
			}
		}
	}

	return false
}
