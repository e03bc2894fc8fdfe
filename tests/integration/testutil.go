//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/minara-ai/minara/internal/api"
	"github.com/minara-ai/minara/internal/auth"
	"github.com/minara-ai/minara/internal/chat"
	"github.com/minara-ai/minara/internal/config"
	inats "github.com/minara-ai/minara/internal/nats"
	"github.com/minara-ai/minara/internal/orgs"
	"github.com/minara-ai/minara/internal/quota"
	"github.com/minara-ai/minara/internal/users"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	NATSClient  *inats.Client
	Server      *httptest.Server
	AuthSvc     *auth.Service
	UserSvc     *users.Service
	UserRepo    users.Repository
	OrgRepo     orgs.Repository
	LedgerRepo  *quota.LedgerRepository
	Enforcer    *quota.Enforcer
	ResetJob    *quota.ResetJob
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "minara_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Start NATS container with JetStream
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--jetstream", "--store_dir", "/data"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting nats container: %v", err)
	}
	t.Cleanup(func() { natsContainer.Terminate(ctx) })

	natsHost, _ := natsContainer.Host(ctx)
	natsPort, _ := natsContainer.MappedPort(ctx, "4222")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/minara_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	migrationsPath := getMigrationsPath()
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		dsn,
	)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Connect to NATS
	natsClient, err := inats.NewClient(ctx, config.NATSConfig{
		URL: fmt.Sprintf("nats://%s:%s", natsHost, natsPort.Port()),
	})
	if err != nil {
		t.Fatalf("connecting to nats: %v", err)
	}
	t.Cleanup(func() { natsClient.Close() })

	publisher := inats.NewPublisher(natsClient.JetStream())

	// Setup services
	jwtManager := auth.NewJWTManager("test-access-secret-at-least-32-chars!!", "test-refresh-secret-at-least-32-chars!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	orgRepo := orgs.NewRepository(pool)
	ledgerRepo := quota.NewLedgerRepository(pool)

	logger := slog.Default()
	authHandler := auth.NewHandler(authSvc, userSvc, logger)

	limitTable := quota.NewLimitTable(map[string]config.TierLimits{
		"free":    {Tokens: 10000, Messages: 100},
		"basic":   {Tokens: 50000, Messages: 500},
		"premium": {Tokens: 200000, Messages: 2000},
	})
	enforcer := quota.NewEnforcer(userRepo, orgRepo, ledgerRepo, limitTable, publisher, 0.8)
	usageHandler := quota.NewHandler(userSvc, orgRepo, ledgerRepo, limitTable)
	resetJob := quota.NewResetJob(userRepo, orgRepo, ledgerRepo, time.Hour)

	chatHandler := chat.NewHandler(enforcer, userSvc, publisher, logger)
	orgHandler := orgs.NewHandler(orgRepo, userSvc, logger)

	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: []string{"*"},
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

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		NATSClient:  natsClient,
		Server:      server,
		AuthSvc:     authSvc,
		UserSvc:     userSvc,
		UserRepo:    userRepo,
		OrgRepo:     orgRepo,
		LedgerRepo:  ledgerRepo,
		Enforcer:    enforcer,
		ResetJob:    resetJob,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password, name string) map[string]any {
	t.Helper()
	body := map[string]string{"email": email, "password": password, "name": name}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
