package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt"

func TestGenerateOperatorToken(t *testing.T) {
	svc := NewJWTService(testSecret, "1h")

	token, expiresAt, err := svc.GenerateOperatorToken("ops@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), expiresAt, 5)

	decoded, err := svc.JWTAuth().Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", decoded.Subject())
	role, _ := decoded.Get("role")
	assert.Equal(t, RoleOperator, role)
	typ, _ := decoded.Get("type")
	assert.Equal(t, TokenTypeAccess, typ)
}

func TestGenerateOperatorToken_Errors(t *testing.T) {
	_, _, err := NewJWTService(testSecret, "1h").GenerateOperatorToken("")
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, _, err = NewJWTService(testSecret, "soon").GenerateOperatorToken("ops")
	assert.Error(t, err)
}

func TestSSEToken(t *testing.T) {
	svc := NewJWTService(testSecret, "1h")

	token, expiresIn, err := svc.GenerateSSEToken("ops")
	require.NoError(t, err)
	assert.Equal(t, 300, expiresIn)

	subject, err := svc.ValidateSSEToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)

	access, _, err := svc.GenerateOperatorToken("ops")
	require.NoError(t, err)
	_, err = svc.ValidateSSEToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTService("another-secret", "1h")
	_, err = other.ValidateSSEToken(token)
	assert.Error(t, err)
}
