package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/circuitbreaker"
	"callcenter-platform/internal/config"
	"callcenter-platform/internal/httpapi"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/providers"
	"callcenter-platform/internal/routing"
	"callcenter-platform/internal/secrets"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/logger"
	"callcenter-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.HasRedis() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	key, err := cfg.Telephony.CredentialKeyBytes()
	if err != nil {
		log.Error("credential key invalid", "err", err)
		os.Exit(1)
	}
	secretStore, err := secrets.NewStore(key)
	if err != nil {
		log.Error("secrets init failed", "err", err)
		os.Exit(1)
	}

	breakerSettings := circuitbreaker.Settings{
		FailureThreshold: cfg.Telephony.BreakerFailureThreshold,
		ResetTimeout:     cfg.Telephony.BreakerResetTimeout,
	}
	var breaker circuitbreaker.Breaker
	if cfg.Telephony.BreakerBackend == "redis" {
		breaker = circuitbreaker.NewRedis(rdb, breakerSettings)
	} else {
		breaker = circuitbreaker.NewMemory(breakerSettings)
	}

	registry := telephony.NewRegistry(
		telephony.NewTwilioProvider(),
		telephony.NewExotelProvider(),
		telephony.NewVoiceBaseProvider(),
		telephony.NewCustomProvider(),
	)

	providerStore := providers.NewPostgresStore(db)
	auditService := audit.NewService(audit.NewPostgresRepo(db))
	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)

	router := routing.NewRouter(routing.RouterOptions{
		Providers:   registry,
		Store:       providerStore,
		Secrets:     secretStore,
		Breaker:     breaker,
		Audit:       auditService,
		Metrics:     sink,
		Logger:      log,
		TestTimeout: cfg.Telephony.TestTimeout,
		CallTimeout: cfg.Telephony.CallTimeout,
	})

	checker := routing.NewHealthChecker(routing.HealthCheckerOptions{
		Providers:   registry,
		Store:       providerStore,
		Secrets:     secretStore,
		Audit:       auditService,
		Metrics:     sink,
		Logger:      log,
		Interval:    cfg.Telephony.HealthCheckInterval,
		Concurrency: cfg.Telephony.HealthCheckConcurrency,
		TestTimeout: cfg.Telephony.TestTimeout,
	})
	go checker.Run(rootCtx)

	handlers := httpapi.Handlers{
		Auth:            authManager,
		Router:          router,
		Store:           providerStore,
		Redis:           rdb,
		OutboundCallCap: cfg.Telephony.OutboundCallCap,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, db, handlers, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
