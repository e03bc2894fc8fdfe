//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow(t *testing.T) {
	env := SetupTestEnv(t)

	result := RegisterUser(t, env, "auth@example.com", "password123", "Auth Tester")
	data := result["data"].(map[string]any)
	refreshToken := data["refresh_token"].(string)
	accessToken := data["access_token"].(string)
	require.NotEmpty(t, accessToken)

	// Refresh rotates the token pair.
	resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": refreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := ParseResponse(t, resp)["data"].(map[string]any)
	assert.NotEmpty(t, refreshed["access_token"])
	assert.NotEqual(t, refreshToken, refreshed["refresh_token"])

	// The consumed refresh token is dead.
	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": refreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Logout revokes the rotated token too.
	newAccess := refreshed["access_token"].(string)
	newRefresh := refreshed["refresh_token"].(string)
	resp = DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, newAccess)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": newRefresh}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Duplicate registration conflicts.
	resp = DoRequest(t, env, "POST", "/api/v1/auth/register",
		map[string]string{"email": "auth@example.com", "password": "password123", "name": "Dup"}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}
