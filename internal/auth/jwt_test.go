package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager(accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return NewJWTManager(
		"test-access-secret-at-least-32-chars!!",
		"test-refresh-secret-at-least-32-chars!",
		accessExpiry,
		refreshExpiry,
	)
}

func TestGenerateTokenPair(t *testing.T) {
	m := newTestJWTManager(15*time.Minute, 7*24*time.Hour)

	pair, tokenID, err := m.GenerateTokenPair("user-123", "user@example.com", "user")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEmpty(t, tokenID)
	assert.Equal(t, int64(900), pair.ExpiresIn)
}

func TestValidateAccessToken(t *testing.T) {
	m := newTestJWTManager(15*time.Minute, 7*24*time.Hour)

	pair, _, err := m.GenerateTokenPair("user-123", "user@example.com", "organization_head")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "organization_head", claims.Role)
	assert.Equal(t, "minara", claims.Issuer)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	m := newTestJWTManager(-time.Minute, 7*24*time.Hour)

	pair, _, err := m.GenerateTokenPair("user-123", "user@example.com", "user")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	m := newTestJWTManager(15*time.Minute, 7*24*time.Hour)
	other := NewJWTManager(
		"another-access-secret-32-chars-long!!!",
		"another-refresh-secret-32-chars-long!!",
		15*time.Minute, 7*24*time.Hour,
	)

	pair, _, err := m.GenerateTokenPair("user-123", "user@example.com", "user")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestValidateRefreshToken(t *testing.T) {
	m := newTestJWTManager(15*time.Minute, 7*24*time.Hour)

	pair, tokenID, err := m.GenerateTokenPair("user-123", "user@example.com", "user")
	require.NoError(t, err)

	claims, err := m.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, tokenID, claims.TokenID)
}

func TestValidateRefreshToken_RejectsAccessToken(t *testing.T) {
	m := newTestJWTManager(15*time.Minute, 7*24*time.Hour)

	pair, _, err := m.GenerateTokenPair("user-123", "user@example.com", "user")
	require.NoError(t, err)

	// Access tokens are signed with a different secret.
	_, err = m.ValidateRefreshToken(pair.AccessToken)
	assert.Error(t, err)
}
