package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonewarden/zonewarden/internal/web/session"
)

// mapStorage is a minimal in-memory storage backend for tests.
type mapStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStorage() *mapStorage {
	return &mapStorage{data: map[string][]byte{}}
}

func (m *mapStorage) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.data[key], nil
}

func (m *mapStorage) Set(key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val

	return nil
}

func (m *mapStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)

	return nil
}

func (m *mapStorage) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string][]byte{}

	return nil
}

func (m *mapStorage) Close() error { return nil }

func TestReadWriteRoundTrip(t *testing.T) {
	svc := session.NewService(newMapStorage(), time.Hour)

	sessionID, err := session.GenerateSessionID()
	require.NoError(t, err)

	data := &session.Data{
		UserID:        42,
		UserLogin:     "admin",
		Authenticated: true,
		LastMod:       time.Now().Unix(),
		AuthIP:        "10.0.0.1",
		AuthUsername:  "admin",
	}
	require.NoError(t, svc.Write(sessionID, data))

	got, err := svc.Read(sessionID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadMissingSessionYieldsEmptyData(t *testing.T) {
	svc := session.NewService(newMapStorage(), time.Hour)

	got, err := svc.Read("does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, &session.Data{}, got)
	assert.False(t, got.Authenticated)
}

func TestDestroy(t *testing.T) {
	svc := session.NewService(newMapStorage(), time.Hour)

	require.NoError(t, svc.Write("sid", &session.Data{UserID: 1, Authenticated: true}))
	require.NoError(t, svc.Destroy("sid"))

	got, err := svc.Read("sid")
	require.NoError(t, err)
	assert.Equal(t, &session.Data{}, got)
}

func TestFlashMessages(t *testing.T) {
	data := &session.Data{}
	data.AddFlash(session.ClassError, "Invalid credentials")
	data.AddFlash(session.ClassInfo, "You have logged out")

	msgs := data.PopFlash()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.ClassError, msgs[0].Class)
	assert.Equal(t, "Invalid credentials", msgs[0].Content)

	assert.Empty(t, data.PopFlash())
}

func TestGenerateSessionIDUniqueness(t *testing.T) {
	first, err := session.GenerateSessionID()
	require.NoError(t, err)

	second, err := session.GenerateSessionID()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}
