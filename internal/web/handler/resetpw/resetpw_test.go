package resetpw

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

	"github.com/zonewarden/zonewarden/internal/config"
	"github.com/zonewarden/zonewarden/internal/csrf"
	"github.com/zonewarden/zonewarden/internal/db/models"
	"github.com/zonewarden/zonewarden/internal/passreset"
	"github.com/zonewarden/zonewarden/internal/web/handler"
	authmw "github.com/zonewarden/zonewarden/internal/web/middleware/auth"
	"github.com/zonewarden/zonewarden/internal/web/session"
)

type noOpViews struct{}

func (noOpViews) Load() error { return nil }

func (noOpViews) Render(w io.Writer, name string, _ interface{}, _ ...string) error {
	_, _ = io.WriteString(w, name)

	return nil
}

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

func (s *testStorage) Reset() error { return nil }

func (s *testStorage) Close() error { return nil }

// recordingMailer captures sent mails instead of talking SMTP.
type recordingMailer struct {
	mails []string
}

func (m *recordingMailer) SendResetMail(_, resetURL string) error {
	m.mails = append(m.mails, resetURL)

	return nil
}

func newTestDeps(t *testing.T, mailer *recordingMailer) *handler.Deps {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.PasswordResetToken{}))

	cfg := &config.Config{
		Webserver: config.Webserver{
			URL:           "http://localhost",
			CookieAuthKey: "0123456789abcdef0123456789abcdef",
			Session:       config.Session{ExpiryTime: time.Minute},
		},
	}

	return &handler.Deps{
		Cfg:      cfg,
		DB:       db,
		Sessions: session.NewService(&testStorage{data: make(map[string][]byte)}, time.Minute),
		CSRF:     csrf.NewService(cfg.Webserver.CookieAuthKey),
		Gate: passreset.NewGate(
			db,
			passreset.NewTokenRepository(db),
			mailer,
			nil,
			time.Hour,
			cfg.Webserver.URL+Path+"/",
		),
	}
}

func newTestApp(t *testing.T, deps *handler.Deps) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{Views: noOpViews{}})
	app.Use(authmw.New(deps))

	var s Service
	require.NoError(t, s.Init(app, deps))

	return app
}

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

func performPost(t *testing.T, app *fiber.App, target, sessionID string, form url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sessionID})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func lastFlash(t *testing.T, deps *handler.Deps, sessionID string) session.Message {
	t.Helper()

	sess, err := deps.Sessions.Read(sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Flash)

	return sess.Flash[len(sess.Flash)-1]
}

// tokenFromMail extracts the plain token from the mailed reset URL.
func tokenFromMail(t *testing.T, mailURL string) string {
	t.Helper()

	idx := strings.LastIndex(mailURL, "/")
	require.Positive(t, idx)

	return mailURL[idx+1:]
}

// The full round trip: request a mail, follow the link, set a new password.
func TestResetRoundTrip(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	app := newTestApp(t, deps)

	require.NoError(t, deps.DB.Create(&models.User{
		Active:     true,
		Username:   "bob",
		Email:      "bob@example.com",
		Password:   models.HashPassword("oldpassword"),
		AuthMethod: models.AuthMethodSQL,
	}).Error)

	sessionID := establishSession(t, app)

	resp := performPost(t, app, Path, sessionID, url.Values{
		"email":  {"bob@example.com"},
		"_token": {deps.CSRF.Issue(sessionID)},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, MsgRequestAccepted, lastFlash(t, deps, sessionID).Content)
	require.Len(t, mailer.mails, 1)

	token := tokenFromMail(t, mailer.mails[0])

	resp = performPost(t, app, Path+"/"+token, sessionID, url.Values{
		"password": {"brand-new-password"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, MsgResetDone, lastFlash(t, deps, sessionID).Content)

	var user models.User

	require.NoError(t, deps.DB.Where("username = ?", "bob").First(&user).Error)
	assert.True(t, user.VerifyPassword("brand-new-password"))
	assert.False(t, user.VerifyPassword("oldpassword"))

	// The token is spent.
	resp = performPost(t, app, Path+"/"+token, sessionID, url.Values{
		"password": {"yet-another-password"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})
	assert.Equal(t, MsgTokenInvalid, lastFlash(t, deps, sessionID).Content)
}

// Unknown and malformed addresses answer exactly like known ones, just
// without a mail.
func TestRequestOutwardlyUniform(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{name: "unknown address", email: "nobody@example.com"},
		{name: "malformed address", email: "not-an-email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &recordingMailer{}
			deps := newTestDeps(t, mailer)
			app := newTestApp(t, deps)

			sessionID := establishSession(t, app)

			resp := performPost(t, app, Path, sessionID, url.Values{
				"email":  {tt.email},
				"_token": {deps.CSRF.Issue(sessionID)},
			})
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, MsgRequestAccepted, lastFlash(t, deps, sessionID).Content)
			assert.Empty(t, mailer.mails)
		})
	}
}

func TestConfirmRejectsShortPassword(t *testing.T) {
	mailer := &recordingMailer{}
	deps := newTestDeps(t, mailer)
	app := newTestApp(t, deps)

	require.NoError(t, deps.DB.Create(&models.User{
		Active:     true,
		Username:   "bob",
		Email:      "bob@example.com",
		Password:   models.HashPassword("oldpassword"),
		AuthMethod: models.AuthMethodSQL,
	}).Error)

	sessionID := establishSession(t, app)

	performPost(t, app, Path, sessionID, url.Values{
		"email":  {"bob@example.com"},
		"_token": {deps.CSRF.Issue(sessionID)},
	})
	require.Len(t, mailer.mails, 1)

	token := tokenFromMail(t, mailer.mails[0])

	performPost(t, app, Path+"/"+token, sessionID, url.Values{
		"password": {"short"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})
	assert.Equal(t, MsgPasswordTooShort, lastFlash(t, deps, sessionID).Content)

	// The token survives a rejected password.
	var user models.User

	require.NoError(t, deps.DB.Where("username = ?", "bob").First(&user).Error)
	assert.True(t, user.VerifyPassword("oldpassword"))
}

func TestConfirmUnknownToken(t *testing.T) {
	deps := newTestDeps(t, &recordingMailer{})
	app := newTestApp(t, deps)

	sessionID := establishSession(t, app)

	resp := performPost(t, app, Path+"/doesnotexist", sessionID, url.Values{
		"password": {"brand-new-password"},
		"_token":   {deps.CSRF.Issue(sessionID)},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, MsgTokenInvalid, lastFlash(t, deps, sessionID).Content)
}
