package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Tier limit table: the free tier is the fallback for unknown tiers and
	// must exist; -1 marks an unlimited token budget, anything below that is
	// a typo.
	if _, ok := c.Quota.Tiers["free"]; !ok {
		errs = append(errs, "quota tier table must define a \"free\" tier")
	}
	for name, limits := range c.Quota.Tiers {
		if limits.Tokens < -1 {
			errs = append(errs, fmt.Sprintf("tier %q token limit must be >= -1, got %d", name, limits.Tokens))
		}
		if limits.Messages < 0 {
			errs = append(errs, fmt.Sprintf("tier %q message limit must be >= 0, got %d", name, limits.Messages))
		}
	}

	if c.Quota.WarnThreshold <= 0 || c.Quota.WarnThreshold > 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_WARN_THRESHOLD must be in (0, 1], got %v", c.Quota.WarnThreshold))
	}

	// Notification channels: warn only — the platform runs without them,
	// quota warnings just go nowhere.
	if !c.SMTP.Enabled() && c.Slack.WebhookURL == "" {
		slog.Warn("no SMTP host or Slack webhook configured — quota warnings will only be logged")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
