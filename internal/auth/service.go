package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrRefreshTokenRevoked = errors.New("refresh token revoked or unknown")

// Service owns the refresh-token lifecycle. Tokens are single use: a
// successful refresh deletes the presented token before new ones are issued.
type Service struct {
	jwtManager *JWTManager
	redis      *redis.Client
}

func NewService(jwtManager *JWTManager, redisClient *redis.Client) *Service {
	return &Service{
		jwtManager: jwtManager,
		redis:      redisClient,
	}
}

func refreshKey(userID, tokenID string) string {
	return fmt.Sprintf("refresh_token:%s:%s", userID, tokenID)
}

// IssueTokens generates an access/refresh pair and records the refresh
// token ID in Redis with the refresh expiry as TTL.
func (s *Service) IssueTokens(ctx context.Context, userID, email, role string) (*TokenPair, error) {
	pair, tokenID, err := s.jwtManager.GenerateTokenPair(userID, email, role)
	if err != nil {
		return nil, err
	}

	err = s.redis.Set(ctx, refreshKey(userID, tokenID), "1", s.jwtManager.RefreshExpiry()).Err()
	if err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}

// ConsumeRefreshToken validates the presented refresh token, checks it is
// still live in Redis, and deletes it. Returns the owning user ID so the
// caller can re-issue tokens from current account data.
func (s *Service) ConsumeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}

	key := refreshKey(claims.UserID, claims.TokenID)
	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("consuming refresh token: %w", err)
	}
	if deleted == 0 {
		return "", ErrRefreshTokenRevoked
	}

	return claims.UserID, nil
}

// RevokeAll removes every live refresh token for the user.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("refresh_token:%s:*", userID)
	iter := s.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("revoking refresh token: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning refresh tokens: %w", err)
	}
	return nil
}
