package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/minara-ai/minara/internal/api"
	"github.com/minara-ai/minara/internal/auth"
	"github.com/minara-ai/minara/internal/chat"
	"github.com/minara-ai/minara/internal/config"
	"github.com/minara-ai/minara/internal/database"
	mw "github.com/minara-ai/minara/internal/middleware"
	inats "github.com/minara-ai/minara/internal/nats"
	"github.com/minara-ai/minara/internal/notify"
	"github.com/minara-ai/minara/internal/orgs"
	"github.com/minara-ai/minara/internal/quota"
	iredis "github.com/minara-ai/minara/internal/redis"
	"github.com/minara-ai/minara/internal/server"
	"github.com/minara-ai/minara/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.Default()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS / JetStream
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)

	// Stores and services
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	orgRepo := orgs.NewRepository(pool)
	ledgerRepo := quota.NewLedgerRepository(pool)

	authHandler := auth.NewHandler(authSvc, userSvc, logger)

	// Quota enforcement
	limitTable := quota.NewLimitTable(cfg.Quota.Tiers)
	enforcer := quota.NewEnforcer(userRepo, orgRepo, ledgerRepo, limitTable, publisher, cfg.Quota.WarnThreshold)
	usageHandler := quota.NewHandler(userSvc, orgRepo, ledgerRepo, limitTable)

	// Monthly reset job
	resetJob := quota.NewResetJob(userRepo, orgRepo, ledgerRepo, cfg.Quota.ResetCheckInterval)
	go resetJob.Start(ctx)

	// Notification consumer. Channels stay nil when unconfigured.
	var mailer notify.EmailSender
	if cfg.SMTP.Enabled() {
		mailer = notify.NewMailer(cfg.SMTP)
	}
	var slack notify.AlertSender
	if cfg.Slack.WebhookURL != "" {
		slack = notify.NewSlackWebhook(cfg.Slack.WebhookURL)
	}
	notifyConsumer := notify.NewConsumer(mailer, slack, consumerMgr)
	go func() {
		if err := notifyConsumer.Start(ctx); err != nil {
			slog.Error("notify consumer stopped", "error", err)
		}
	}()

	// Chat and org handlers
	chatHandler := chat.NewHandler(enforcer, userSvc, publisher, logger)
	orgHandler := orgs.NewHandler(orgRepo, userSvc, logger)

	authLimiter := mw.NewRateLimiter(redisClient, 10, 60)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		GetMyUsage:     usageHandler.GetMyUsage,
		GetUsageStatus: usageHandler.GetMyUsage,

		ChatCompletion: chatHandler.Completion,

		CreateQuotaRequest: orgHandler.CreateQuotaRequest,

		GetOrganization:     orgHandler.GetOrganization,
		ListQuotaRequests:   orgHandler.ListQuotaRequests,
		ResolveQuotaRequest: orgHandler.ResolveQuotaRequest,
		SetMemberQuota:      orgHandler.SetMemberQuota,

		AuthMiddleware: auth.Middleware(jwtManager),
	})

	// Start server; cancel() stops the reset job and consumers on the way out
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
