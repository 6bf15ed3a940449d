// Package session implements the server side session store. Session data is
// JSON encoded and written to a pluggable storage backend keyed by an opaque
// session ID carried in a cookie.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
)

// CookieName is the cookie carrying the opaque session ID.
const CookieName = "zonewarden_session"

// Flash message classes.
const (
	ClassError   = "error"
	ClassWarning = "warning"
	ClassSuccess = "success"
	ClassInfo    = "info"
)

// Message is a flash message rendered once on the next page.
type Message struct {
	Class   string
	Content string
}

// Data is the per browser context session state. Authenticated is only ever
// set true after every required factor succeeded. While a second factor is
// outstanding PendingUserID carries the candidate user and Authenticated
// stays false.
type Data struct {
	UserID        uint64
	UserLogin     string
	Authenticated bool
	PendingUserID uint64
	// LastMod is the unix timestamp of the last authenticated activity.
	LastMod int64
	// AuthTimestamp, AuthIP and AuthUsername are the external verification
	// cache fields. They are stamped after a fresh full verification and
	// cleared on logout or mismatch.
	AuthTimestamp int64
	AuthIP        string
	AuthUsername  string
	Lang          string
	// OAuthState and SAMLRequestID pin an in-flight single sign-on login to
	// this browser context.
	OAuthState    string
	SAMLRequestID string
	// AgreementOK is set once the current agreement version was accepted.
	AgreementOK bool
	Flash       []Message
}

// AddFlash appends a flash message to the session.
func (s *Data) AddFlash(class, content string) {
	s.Flash = append(s.Flash, Message{Class: class, Content: content})
}

// PopFlash returns the pending flash messages and clears them.
func (s *Data) PopFlash() []Message {
	out := s.Flash
	s.Flash = nil

	return out
}

// Service reads and writes session data against a storage backend. It is
// injected into handlers, never held as a process wide singleton.
type Service struct {
	storage fiber.Storage
	expiry  time.Duration
}

// NewService creates a session service on top of the given storage backend.
// expiry is the absolute storage lifetime of a session record.
func NewService(storage fiber.Storage, expiry time.Duration) *Service {
	if storage == nil {
		panic("storage is nil")
	}

	return &Service{storage: storage, expiry: expiry}
}

// Read loads the session data for the given session ID. A missing or expired
// record yields an empty Data, not an error.
func (s *Service) Read(sessionID string) (*Data, error) {
	byteData, err := s.storage.Get(sessionID)
	if err != nil {
		return nil, err
	}

	data := &Data{}
	if len(byteData) == 0 {
		return data, nil
	}

	if err := json.Unmarshal(byteData, data); err != nil {
		return nil, err
	}

	return data, nil
}

// Write persists the session data for the given session ID.
func (s *Service) Write(sessionID string, data *Data) error {
	out, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.storage.Set(sessionID, out, s.expiry)
}

// Destroy removes the session record.
func (s *Service) Destroy(sessionID string) error {
	return s.storage.Delete(sessionID)
}

// FromCtx returns the request's session ID and data, setting a fresh cookie
// when none exists yet.
func (s *Service) FromCtx(c *fiber.Ctx) (string, *Data, error) {
	sessionID := c.Cookies(CookieName)
	if sessionID == "" {
		var err error

		sessionID, err = GenerateSessionID()
		if err != nil {
			return "", nil, err
		}

		SetCookie(c, sessionID)

		return sessionID, &Data{}, nil
	}

	data, err := s.Read(sessionID)
	if err != nil {
		return "", nil, err
	}

	return sessionID, data, nil
}

// SetCookie points the client at the given session ID.
func SetCookie(c *fiber.Ctx, sessionID string) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// DropCookie expires the session cookie on the client.
func DropCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
