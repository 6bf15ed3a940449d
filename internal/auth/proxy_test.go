package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zonewarden/zonewarden/internal/auth"
)

func headers(m map[string]string) auth.HeaderGetter {
	return func(key string) string { return m[key] }
}

func TestEffectiveScheme(t *testing.T) {
	testCases := []struct {
		name        string
		localScheme string
		headers     map[string]string
		want        string
	}{
		{
			name:        "direct https",
			localScheme: "https",
			headers:     map[string]string{},
			want:        "https",
		},
		{
			name:        "direct http no proxy",
			localScheme: "http",
			headers:     map[string]string{},
			want:        "http",
		},
		{
			name:        "x-forwarded-proto https",
			localScheme: "http",
			headers:     map[string]string{"X-Forwarded-Proto": "https"},
			want:        "https",
		},
		{
			name:        "x-forwarded-proto mixed case",
			localScheme: "http",
			headers:     map[string]string{"X-Forwarded-Proto": "HTTPS"},
			want:        "https",
		},
		{
			name:        "cloudflare cf-visitor",
			localScheme: "http",
			headers:     map[string]string{"CF-Visitor": `{"scheme":"https"}`},
			want:        "https",
		},
		{
			name:        "rfc7239 forwarded",
			localScheme: "http",
			headers:     map[string]string{"Forwarded": `for=192.0.2.60;proto=https;by=203.0.113.43`},
			want:        "https",
		},
		{
			name:        "rfc7239 forwarded quoted multiple elements",
			localScheme: "http",
			headers:     map[string]string{"Forwarded": `for=192.0.2.43, for=198.51.100.17;proto="https"`},
			want:        "https",
		},
		{
			name:        "proxy present but advertising http",
			localScheme: "http",
			headers:     map[string]string{"X-Forwarded-Proto": "http", "X-Real-Ip": "192.0.2.1"},
			want:        "http",
		},
		{
			name:        "real-ip marker alone does not imply https",
			localScheme: "http",
			headers:     map[string]string{"X-Real-Ip": "192.0.2.1"},
			want:        "http",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, auth.EffectiveScheme(tc.localScheme, headers(tc.headers)))
		})
	}
}

func TestBehindReverseProxy(t *testing.T) {
	assert.False(t, auth.BehindReverseProxy(headers(map[string]string{})))
	assert.True(t, auth.BehindReverseProxy(headers(map[string]string{"X-Forwarded-Host": "dns.example.com"})))
	assert.True(t, auth.BehindReverseProxy(headers(map[string]string{"Forwarded": "for=192.0.2.60"})))
}
