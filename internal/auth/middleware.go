package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/minara-ai/minara/internal/api"
)

type contextKey string

const UserClaimsKey contextKey = "user_claims"

// Middleware validates the bearer token and stores the decoded claims
// in the request context.
func Middleware(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrMissingToken)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			claims, err := jwtManager.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserClaims extracts claims previously stored by Middleware.
func GetUserClaims(ctx context.Context) (*AccessClaims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*AccessClaims)
	return claims, ok
}
