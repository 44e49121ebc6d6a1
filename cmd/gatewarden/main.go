package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/api"
	"github.com/gatewarden/gatewarden/audit"
	"github.com/gatewarden/gatewarden/config"
	"github.com/gatewarden/gatewarden/engine"
	"github.com/gatewarden/gatewarden/guard"
	"github.com/gatewarden/gatewarden/health"
	"github.com/gatewarden/gatewarden/logger"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/rbac"
	"github.com/gatewarden/gatewarden/session"
	"github.com/gatewarden/gatewarden/telemetry"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on the environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("starting gatewarden",
		zap.String("version", Version),
		zap.Int("port", cfg.Port),
		zap.String("policy_file", cfg.PolicyFile),
		zap.String("session_backend", cfg.SessionBackend),
	)

	hierarchy := rbac.DefaultHierarchy()

	// The policy document is the single authorization surface: routes,
	// public prefixes, redirect targets and the missing-role fallback.
	doc, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		logger.Log.Fatal("failed to load policy file", zap.Error(err))
	}
	registry, err := doc.Registry(hierarchy)
	if err != nil {
		logger.Log.Fatal("invalid policy file", zap.Error(err))
	}
	missingRole, err := engine.ParseMissingRoleMode(doc.MissingRole)
	if err != nil {
		logger.Log.Fatal("invalid policy file", zap.Error(err))
	}
	fallback := engine.Fallback{
		MissingRole: missingRole,
		SignInURL:   doc.SignInURL,
		DeniedURL:   doc.DeniedURL,
	}
	logger.Log.Info("policy table loaded",
		zap.Int("routes", len(registry.Entries())),
		zap.Int("public", len(registry.Public())),
		zap.String("missing_role", missingRole.String()),
	)

	var db *gorm.DB
	if cfg.SessionBackend == "database" || cfg.AuditToDB {
		db, err = gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			logger.Log.Fatal("failed to open database", zap.Error(err))
		}
	}

	// Session backend: stateless tokens by default, revocable database
	// records when configured.
	sessionTTL := time.Duration(cfg.SessionTTL) * time.Second
	var (
		verifier session.Verifier
		issuer   api.Issuer
		revoker  api.Revoker
	)
	switch cfg.SessionBackend {
	case "database":
		store := session.NewStore(db, sessionTTL)
		if err := store.AutoMigrate(); err != nil {
			logger.Log.Fatal("failed to migrate session table", zap.Error(err))
		}
		verifier = store
		storeIssuer := api.StoreIssuer{Store: store}
		issuer, revoker = storeIssuer, storeIssuer
	default:
		jwt := session.NewHS256(cfg.JWTSecret, sessionTTL)
		verifier = jwt
		issuer = api.JWTIssuer{JWT: jwt}
	}
	resolver := session.NewHeaderResolver(verifier, cfg.SessionCookie)

	// Audit sink: structured log by default, database when configured.
	var auditStore audit.Store = audit.NewZapStore(logger.Log)
	var gormAudit *audit.GormStore
	if cfg.AuditToDB {
		gormAudit = audit.NewGormStore(db)
		if err := gormAudit.AutoMigrate(); err != nil {
			logger.Log.Fatal("failed to migrate audit table", zap.Error(err))
		}
		auditStore = gormAudit
	}

	var provider *telemetry.Provider
	if cfg.TelemetryEnabled {
		provider, err = telemetry.NewProvider(telemetry.Config{
			ServiceName:    "gatewarden",
			ServiceVersion: Version,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SamplingRate:   1.0,
			Enabled:        true,
		})
		if err != nil {
			logger.Log.Fatal("failed to initialize telemetry", zap.Error(err))
		}
	}

	// Decision pipeline, innermost first: engine, cache, audit, telemetry.
	// Only the engine decides; the wrappers observe and memoize.
	var evaluator engine.Evaluator = engine.New(hierarchy, fallback)
	var redisClient *redis.Client
	if cacheTTL := time.Duration(cfg.CacheTTL) * time.Second; cacheTTL > 0 {
		if cfg.RedisAddr != "" {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			evaluator = engine.NewRedisCachingMiddleware(evaluator, redisClient, cacheTTL, "")
			logger.Log.Info("decision cache enabled", zap.String("backend", "redis"), zap.Duration("ttl", cacheTTL))
		} else {
			evaluator = engine.NewCachingMiddleware(evaluator, cacheTTL)
			logger.Log.Info("decision cache enabled", zap.String("backend", "memory"), zap.Duration("ttl", cacheTTL))
		}
	}
	evaluator = engine.NewAuditMiddleware(evaluator, auditStore)
	if provider != nil {
		evaluator = engine.NewTelemetryMiddleware(evaluator, provider)
	}

	g, err := guard.New(guard.Options{
		Registry:   registry,
		Evaluator:  evaluator,
		Resolver:   resolver,
		Classifier: guard.NewClassifier(doc.APIPrefixes...),
		Dispatcher: guard.NewDispatcher(doc.SignInURL, doc.DeniedURL),
		Logger:     logger.Log,
		Telemetry:  provider,
	})
	if err != nil {
		logger.Log.Fatal("failed to assemble guard", zap.Error(err))
	}

	h, err := api.NewHandler(api.Config{
		Guard:     g,
		Hierarchy: hierarchy,
		Issuer:    issuer,
		Revoker:   revoker,
		Resolver:  resolver,
		Audit:     gormAudit,
		Cookie:    cfg.SessionCookie,
		TokenTTL:  sessionTTL,
	})
	if err != nil {
		logger.Log.Fatal("failed to assemble handler", zap.Error(err))
	}

	manager := health.NewManager(Version)
	manager.Register(health.NewPolicyChecker(registry))
	if db != nil {
		manager.Register(health.NewDatabaseChecker("database", db))
	}
	if redisClient != nil {
		manager.Register(health.NewRedisChecker("redis", redisClient))
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(g.Middleware())

	h.RegisterRoutes(e)
	e.GET("/healthz", echo.WrapHandler(manager.LiveHandler()))
	e.GET("/ready", echo.WrapHandler(manager.ReadyHandler()))
	e.GET("/health", echo.WrapHandler(manager.FullHandler()))

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Log.Error("forced shutdown", zap.Error(err))
	}
	if provider != nil {
		if err := provider.Shutdown(ctx); err != nil {
			logger.Log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	logger.Log.Info("server exited")
}
