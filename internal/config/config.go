package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	NATS   NATSConfig
	JWT    JWTConfig
	SMTP   SMTPConfig
	Slack  SlackConfig
	Quota  QuotaConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound email is configured at all.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type SlackConfig struct {
	WebhookURL string
}

// TierLimits is one row of the tier limit table: a monthly token budget and
// a monthly message budget.
type TierLimits struct {
	Tokens   int64
	Messages int64
}

type QuotaConfig struct {
	// WarnThreshold is the usage fraction past which warning notifications
	// fire (0.8 = 80%).
	WarnThreshold float64
	// ResetCheckInterval is how often the reset job wakes up to look for
	// counters stamped in a previous calendar month.
	ResetCheckInterval time.Duration
	// Tiers maps tier name to its limits. The "free" tier must be present;
	// it is the fallback for unknown tiers.
	Tiers map[string]TierLimits
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitCSV(k.String("server.cors.origins")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		SMTP: SMTPConfig{
			Host:     k.String("smtp.host"),
			Port:     k.Int("smtp.port"),
			Username: k.String("smtp.username"),
			Password: k.String("smtp.password"),
			From:     k.String("smtp.from"),
		},
		Slack: SlackConfig{
			WebhookURL: k.String("slack.webhook.url"),
		},
		Quota: QuotaConfig{
			WarnThreshold: k.Float64("quota.warn.threshold"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.CORSAllowedOrigins) == 0 {
		cfg.Server.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "minara"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "minara"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = "no-reply@minara.ai"
	}
	if cfg.Quota.WarnThreshold == 0 {
		cfg.Quota.WarnThreshold = 0.8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	resetIntStr := k.String("quota.reset.check.interval")
	if resetIntStr == "" {
		resetIntStr = "1h"
	}
	cfg.Quota.ResetCheckInterval, err = time.ParseDuration(resetIntStr)
	if err != nil {
		return nil, fmt.Errorf("parsing quota reset check interval: %w", err)
	}

	cfg.Quota.Tiers = loadTiers(k)

	return cfg, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadTiers builds the tier limit table. Each built-in tier can be
// overridden with TIER_<NAME>_TOKENS / TIER_<NAME>_MESSAGES.
func loadTiers(k *koanf.Koanf) map[string]TierLimits {
	tiers := map[string]TierLimits{
		"free":    {Tokens: 10_000, Messages: 100},
		"basic":   {Tokens: 50_000, Messages: 500},
		"premium": {Tokens: 200_000, Messages: 2_000},
	}

	for name, def := range tiers {
		limits := def
		if v := k.Int64("tier." + name + ".tokens"); v != 0 {
			limits.Tokens = v
		}
		if v := k.Int64("tier." + name + ".messages"); v != 0 {
			limits.Messages = v
		}
		tiers[name] = limits
	}

	return tiers
}
