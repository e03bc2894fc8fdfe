//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatQuotaDrain(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	RegisterUser(t, env, "drain@example.com", "password123", "Drain Tester")
	token := LoginUser(t, env, "drain@example.com", "password123")

	// Fresh account reports the free tier with nothing consumed.
	resp := DoRequest(t, env, "GET", "/api/v1/usage/me", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	usage := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "tier", usage["regime"])
	assert.Equal(t, "free", usage["tier"])
	assert.Equal(t, float64(0), usage["tokens_used"])
	assert.Equal(t, float64(10000), usage["tokens_limit"])

	// First turn: ~2 prompt tokens + 8192 reply allowance fits the budget.
	body := map[string]any{"message": "hello", "max_tokens": 8192}
	resp = DoRequest(t, env, "POST", "/api/v1/chat/completions", body, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "queued", accepted["status"])
	assert.NotEmpty(t, accepted["request_id"])

	// Second identical turn would bust the 10000 budget.
	resp = DoRequest(t, env, "POST", "/api/v1/chat/completions", body, token)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// Usage reflects exactly the one committed turn.
	resp = DoRequest(t, env, "GET", "/api/v1/usage/me", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	usage = ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(8194), usage["tokens_used"])
	assert.Equal(t, float64(1), usage["messages_used"])

	// The ledger was created lazily, seeded with the free tier snapshot.
	user, err := env.UserSvc.GetByEmail(ctx, "drain@example.com")
	require.NoError(t, err)
	var limitTokens, limitMessages int64
	err = env.Pool.QueryRow(ctx,
		`SELECT limit_tokens, limit_messages FROM usage_ledgers WHERE user_id = $1`,
		user.ID).Scan(&limitTokens, &limitMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), limitTokens)
	assert.Equal(t, int64(100), limitMessages)
}

func TestMonthlyResetClearsStaleCounters(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	RegisterUser(t, env, "reset@example.com", "password123", "Reset Tester")
	token := LoginUser(t, env, "reset@example.com", "password123")

	body := map[string]any{"message": "hello", "max_tokens": 100}
	resp := DoRequest(t, env, "POST", "/api/v1/chat/completions", body, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	user, err := env.UserSvc.GetByEmail(ctx, "reset@example.com")
	require.NoError(t, err)

	// Backdate the ledger into last month; the reset pass must zero it.
	_, err = env.Pool.Exec(ctx,
		`UPDATE usage_ledgers SET last_reset = NOW() - INTERVAL '45 days' WHERE user_id = $1`,
		user.ID)
	require.NoError(t, err)

	require.NoError(t, env.ResetJob.RunOnce(ctx))

	var tokens, messages int64
	err = env.Pool.QueryRow(ctx,
		`SELECT token_usage_monthly, message_count_monthly FROM usage_ledgers WHERE user_id = $1`,
		user.ID).Scan(&tokens, &messages)
	require.NoError(t, err)
	assert.Zero(t, tokens)
	assert.Zero(t, messages)

	// A second pass in the same month is a no-op.
	require.NoError(t, env.ResetJob.RunOnce(ctx))
}
