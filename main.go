package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/audit"
	"github.com/veridia-ai/veridia-core/pkg/config"
	"github.com/veridia-ai/veridia-core/pkg/crypto"
	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/engine"
	"github.com/veridia-ai/veridia-core/pkg/guardrail"
	"github.com/veridia-ai/veridia-core/pkg/handlers"
	"github.com/veridia-ai/veridia-core/pkg/metering"
	"github.com/veridia-ai/veridia-core/pkg/policy"
	"github.com/veridia-ai/veridia-core/pkg/repositories"
	"github.com/veridia-ai/veridia-core/pkg/retrieval"
	"github.com/veridia-ai/veridia-core/pkg/router"
	"github.com/veridia-ai/veridia-core/pkg/session"
	"github.com/veridia-ai/veridia-core/pkg/synthesis"
	"github.com/veridia-ai/veridia-core/pkg/tenants"
	"github.com/veridia-ai/veridia-core/pkg/vault"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.Bool("redis_sessions", cfg.Redis.Host != ""))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run over database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	encryptor, err := crypto.NewCredentialEncryptor(cfg.VaultMasterKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryptor", zap.Error(err))
	}

	tenantRepo := repositories.NewTenantRepository(db)
	credRepo := repositories.NewCredentialRepository(db)
	policyRepo := repositories.NewPolicyRepository(db, encryptor)
	auditRepo := repositories.NewAuditRepository(db)
	usageRepo := repositories.NewUsageRepository(db)

	trail := audit.NewTrail(logger, auditRepo)
	credVault := vault.New(credRepo, encryptor, trail, logger)
	policies := policy.NewStore(policyRepo, logger)

	sessions, err := newSessionStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}

	pools := retrieval.NewPoolManager(retrieval.PoolManagerConfig{
		TTLMinutes:   cfg.Retrieval.PoolTTLMinutes,
		PoolMaxConns: cfg.Retrieval.PoolMaxConns,
	}, logger)
	defer pools.Close()

	mssql := retrieval.NewMSSQLExecutor(int(cfg.Retrieval.PoolMaxConns), logger)
	if closer, ok := mssql.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	executor := &retrieval.ExecutorForDriver{
		Postgres: retrieval.NewPostgresExecutor(pools, logger),
		MSSQL:    mssql,
	}

	eng := engine.New(engine.Deps{
		Tenants:   tenantRepo,
		Vault:     credVault,
		Policies:  policies,
		Router: router.New(router.Config{
			ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
			HistoryWindow:       cfg.Router.HistoryWindow,
		}, logger),
		Validator:       guardrail.NewValidator(),
		Searcher:        retrieval.NewDocumentSearcher(db, logger),
		Executor:        executor,
		Synth:           synthesis.NewEngine(logger),
		Sessions:        sessions,
		Trail:           trail,
		Meter:           metering.NewRecorder(usageRepo, logger),
		VectorTopK:      cfg.Retrieval.VectorTopK,
		InvalidatePools: pools.Invalidate,
	}, logger)

	registry := tenants.NewService(tenantRepo, credVault, policies, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(eng, logger).RegisterRoutes(mux)
	handlers.NewTenantHandler(registry, eng, logger).RegisterRoutes(mux)
	handlers.NewDocumentHandler(db, sessions, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting veridia-core",
			zap.String("port", cfg.Port),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newSessionStore selects Redis-backed session state when configured and
// falls back to the in-process store otherwise.
func newSessionStore(cfg *config.Config, logger *zap.Logger) (session.Store, error) {
	if cfg.Redis.Host == "" {
		logger.Info("Using in-memory session store")
		return session.NewMemoryStore(session.DefaultWindow, session.DefaultTTL), nil
	}

	client, err := database.NewRedisClient(context.Background(), &database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Using Redis session store", zap.String("host", cfg.Redis.Host))
	return session.NewRedisStore(client, session.DefaultWindow, session.DefaultTTL), nil
}
