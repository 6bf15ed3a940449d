package login

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zonewarden/zonewarden/internal/auth"
	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/csrf"
	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/recaptcha"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	authmw "github.com/zonewarden/zonewarden/internal/web/middleware/auth"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

// noOpViews is a minimal Fiber Views engine used for tests. It writes the
// "Error" field from the provided fiber.Map (if any) so tests can assert
// error messages rendered by handlers.
type noOpViews struct{}

func (noOpViews) Load() error { return nil }

func (noOpViews) Render(w io.Writer, name string, data interface{}, _ ...string) error {
	if m, ok := data.(fiber.Map); ok {
		if v, exists := m["Error"]; exists && v != nil {
			_, _ = io.WriteString(w, v.(string))

			return nil
		}
	}

	// write template name to have some content
	_, _ = io.WriteString(w, name)

	return nil
}

// testStorage is a minimal in-memory fiber.Storage for session records.
type testStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (s *testStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.data[key]
	out := make([]byte, len(v))
	copy(out, v)

	return out, nil
}

func (s *testStorage) Set(key string, val []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string][]byte)
	}

	buf := make([]byte, len(val))
	copy(buf, val)
	s.data[key] = buf

	return nil
}

func (s *testStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)

	return nil
}

func (s *testStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string][]byte)

	return nil
}

func (s *testStorage) Close() error { return nil }

func newTestConfig() *config.Config {
	return &config.Config{
		Title: "ZoneWarden",
		Webserver: config.Webserver{
			URL:           "http://localhost",
			Port:          3000,
			CookieAuthKey: "0123456789abcdef0123456789abcdef",
			Session:       config.Session{ExpiryTime: time.Minute},
		},
		Auth: config.Auth{
			LocalDB: config.LocalDBAuth{Enabled: true},
		},
	}
}

func newTestDeps(t *testing.T) *handler.Deps {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.AgreementAcceptance{}))

	cfg := newTestConfig()

	return &handler.Deps{
		Cfg:         cfg,
		DB:          db,
		Sessions:    session.NewService(&testStorage{data: make(map[string][]byte)}, cfg.Webserver.Session.ExpiryTime),
		CSRF:        csrf.NewService(cfg.Webserver.CookieAuthKey),
		Captcha:     recaptcha.New(&cfg.Auth.Recaptcha),
		Cache:       auth.NewCache(cfg.Webserver.Session.AuthCacheTimeout),
		SQL:         auth.NewSQLVerifier(db),
		Provisioner: auth.NewProvisioner(db),
	}
}

// newTestApp builds an app with the session middleware and the login routes,
// matching how the web service mounts them.
func newTestApp(t *testing.T, deps *handler.Deps) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{Views: noOpViews{}})
	app.Use(authmw.New(deps))

	var s Service
	require.NoError(t, s.Init(app, deps))

	return app
}

func createUser(t *testing.T, db *gorm.DB, user models.User) models.User {
	t.Helper()
	require.NoError(t, db.Create(&user).Error)

	return user
}

// establishSession performs a GET on the login page and returns the session
// ID the server handed out in the cookie.
func establishSession(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, Path, nil), -1)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == session.CookieName {
			return cookie.Value
		}
	}

	t.Fatal("no session cookie set")

	return ""
}

// sessionCookie returns the session ID the response points the client at.
func sessionCookie(t *testing.T, resp *http.Response) string {
	t.Helper()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == session.CookieName && cookie.Value != "" {
			return cookie.Value
		}
	}

	t.Fatal("no session cookie set")

	return ""
}

func performPost(t *testing.T, app *fiber.App, sessionID string, form url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sessionID})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func TestPostValidCredentials(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	user := createUser(t, deps.DB, models.User{
		Active:     true,
		Username:   "alice",
		Email:      "alice@example.com",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	// The privilege change rotates the session ID. The pre-login record is
	// gone and the authenticated state lives only under the fresh ID.
	freshID := sessionCookie(t, resp)
	assert.NotEqual(t, sessionID, freshID)

	stale, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, stale.Authenticated)
	assert.Zero(t, stale.UserID)

	sess, err := deps.Sessions.Read(freshID)
	require.NoError(t, err)
	assert.True(t, sess.Authenticated)
	assert.Equal(t, user.ID, sess.UserID)
	assert.Equal(t, "alice", sess.UserLogin)
	assert.Zero(t, sess.PendingUserID)
	assert.NotZero(t, sess.LastMod)
}

func TestPostWrongPassword(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	createUser(t, deps.DB, models.User{
		Active:     true,
		Username:   "alice",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {"wrong"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, Path, resp.Header.Get("Location"))

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	assert.Zero(t, sess.UserID)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgInvalidCredentials, sess.Flash[0].Content)
}

// Unknown usernames and wrong passwords must be indistinguishable.
func TestPostUnknownUserSameMessage(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"nobody"},
		"password": {"whatever"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusFound, resp.StatusCode)

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgInvalidCredentials, sess.Flash[0].Content)
}

func TestPostMissingCSRFToken(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	createUser(t, deps.DB, models.User{
		Active:     true,
		Username:   "alice",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, Path, resp.Header.Get("Location"))

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgInvalidCSRF, sess.Flash[0].Content)
}

// A token issued for one session must not pass on another.
func TestPostForeignCSRFToken(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	sessionID := establishSession(t, app)
	otherID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
		"_token":   {deps.CSRF.Issue(otherID)},
	})

	defer func() { _ = resp.Body.Close() }()

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgInvalidCSRF, sess.Flash[0].Content)
}

func TestPostEmptyPassword(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	createUser(t, deps.DB, models.User{
		Active:     true,
		Username:   "alice",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {""},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgEmptyPassword, sess.Flash[0].Content)
}

func TestPostInactiveUserGenericMessage(t *testing.T) {
	deps := newTestDeps(t)
	app := newTestApp(t, deps)

	createUser(t, deps.DB, models.User{
		Active:     false,
		Username:   "mallory",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"mallory"},
		"password": {"s3cret"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgInvalidCredentials, sess.Flash[0].Content)
}

// A user with an enrolled authenticator lands on the second factor page with
// the session still unauthenticated.
func TestPostSecondFactorPending(t *testing.T) {
	deps := newTestDeps(t)
	deps.Cfg.Auth.MFA.Enabled = true
	app := newTestApp(t, deps)

	user := createUser(t, deps.DB, models.User{
		Active:     true,
		Username:   "alice",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
		TOTPSecret: "JBSWY3DPEHPK3PXP",
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/mfa", resp.Header.Get("Location"))

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	assert.Equal(t, user.ID, sess.PendingUserID)
	assert.Zero(t, sess.UserID)
}

func TestPostLocalAuthDisabled(t *testing.T) {
	deps := newTestDeps(t)
	deps.Cfg.Auth.LocalDB.Enabled = false
	app := newTestApp(t, deps)

	createUser(t, deps.DB, models.User{
		Active:     true,
		Username:   "alice",
		Password:   models.HashPassword("s3cret"),
		AuthMethod: models.AuthMethodSQL,
	})

	sessionID := establishSession(t, app)

	resp := performPost(t, app, sessionID, url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})

	defer func() { _ = resp.Body.Close() }()

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	require.Len(t, sess.Flash, 1)
	assert.Equal(t, MsgInvalidCredentials, sess.Flash[0].Content)
}
