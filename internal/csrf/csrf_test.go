package csrf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zonewarden/zonewarden/internal/csrf"
)

func TestIssueAndValidate(t *testing.T) {
	svc := csrf.NewService("signing-key")

	token := svc.Issue("session-1")
	assert.True(t, svc.Validate("session-1", token))

	// Tokens are compared, not consumed.
	assert.True(t, svc.Validate("session-1", token))
}

func TestTokenBoundToSession(t *testing.T) {
	svc := csrf.NewService("signing-key")

	token := svc.Issue("session-1")
	assert.False(t, svc.Validate("session-2", token))
}

func TestRejectsMalformedTokens(t *testing.T) {
	svc := csrf.NewService("signing-key")

	assert.False(t, svc.Validate("session-1", ""))
	assert.False(t, svc.Validate("session-1", "no-separator"))
	assert.False(t, svc.Validate("session-1", "shortnonce.abcdef"))
	assert.False(t, svc.Validate("session-1", svc.Issue("session-1")+"x"))
}

func TestRejectsTokenSignedWithOtherKey(t *testing.T) {
	a := csrf.NewService("key-a")
	b := csrf.NewService("key-b")

	token := a.Issue("session-1")
	assert.False(t, b.Validate("session-1", token))
}

func TestTokensDiffer(t *testing.T) {
	svc := csrf.NewService("signing-key")

	assert.NotEqual(t, svc.Issue("session-1"), svc.Issue("session-1"))
}
