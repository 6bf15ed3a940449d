package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/dnscontrol"
	"github.com/zonewarden/zonewarden/internal/web/handler"
)

const testPlainKey = "zwk_test_0123456789abcdef"

// stubPlane records control plane calls without a PowerDNS server.
type stubPlane struct {
	zones     []dnscontrol.Zone
	rectified []string
	secured   []string
	unsecured []string
	deleted   []uint64
}

func (p *stubPlane) ListZones(_ context.Context) ([]dnscontrol.Zone, error) {
	return p.zones, nil
}

func (p *stubPlane) RectifyZone(_ context.Context, zone string) error {
	p.rectified = append(p.rectified, zone)

	return nil
}

func (p *stubPlane) SecureZone(_ context.Context, zone string) error {
	p.secured = append(p.secured, zone)

	return nil
}

func (p *stubPlane) UnsecureZone(_ context.Context, zone string) error {
	p.unsecured = append(p.unsecured, zone)

	return nil
}

func (p *stubPlane) ListKeys(_ context.Context, _ string) ([]dnscontrol.Key, error) {
	return []dnscontrol.Key{{ID: 11, KeyType: "csk", Active: true}}, nil
}

func (p *stubPlane) DeleteKey(_ context.Context, _ string, keyID uint64) error {
	p.deleted = append(p.deleted, keyID)

	return nil
}

func newAPITestApp(t *testing.T, plane dnscontrol.Plane) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.APIKey{}))

	hash, err := argon2id.CreateHash(testPlainKey, argon2id.DefaultParams)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.APIKey{
		Prefix:  testPlainKey[:8],
		KeyHash: hash,
		UserID:  1,
		Active:  true,
	}).Error)

	app := fiber.New()
	registerAPI(app, &handler.Deps{
		DB:    db,
		SQL:   auth.NewSQLVerifier(db),
		Plane: plane,
	})

	return app
}

func performAPI(t *testing.T, app *fiber.App, method, target string, withKey bool) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if withKey {
		req.Header.Set("X-API-Key", testPlainKey)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestAPIRequiresKey(t *testing.T) {
	app := newAPITestApp(t, &stubPlane{})

	resp := performAPI(t, app, http.MethodGet, "/api/zones", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIZoneOperations(t *testing.T) {
	plane := &stubPlane{zones: []dnscontrol.Zone{
		{Name: "example.com.", Kind: "Native", Serial: 2026083101, DNSSEC: true},
	}}
	app := newAPITestApp(t, plane)

	resp := performAPI(t, app, http.MethodGet, "/api/zones", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var zones []dnscontrol.Zone

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&zones))
	require.Len(t, zones, 1)
	assert.Equal(t, "example.com.", zones[0].Name)

	resp = performAPI(t, app, http.MethodPost, "/api/zones/example.com./rectify", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"example.com."}, plane.rectified)

	resp = performAPI(t, app, http.MethodPost, "/api/zones/example.com./dnssec", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"example.com."}, plane.secured)

	resp = performAPI(t, app, http.MethodDelete, "/api/zones/example.com./dnssec", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"example.com."}, plane.unsecured)

	resp = performAPI(t, app, http.MethodGet, "/api/zones/example.com./keys", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = performAPI(t, app, http.MethodDelete, "/api/zones/example.com./keys/11", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []uint64{11}, plane.deleted)

	resp = performAPI(t, app, http.MethodDelete, "/api/zones/example.com./keys/notanumber", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIWithoutPlane(t *testing.T) {
	app := newAPITestApp(t, nil)

	resp := performAPI(t, app, http.MethodGet, "/api/zones", true)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
