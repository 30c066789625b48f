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

	"tiny-resolver/internal/audit"
	"tiny-resolver/internal/auth"
	"tiny-resolver/internal/cache"
	"tiny-resolver/internal/config"
	"tiny-resolver/internal/history"
	"tiny-resolver/internal/httpapi"
	"tiny-resolver/internal/limiter"
	"tiny-resolver/internal/reporting"
	"tiny-resolver/internal/resolver"
	"tiny-resolver/internal/transport"
	"tiny-resolver/pkg/logger"
	"tiny-resolver/pkg/utils"

	"github.com/gin-gonic/gin"
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

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		slog.Error("logger init failed", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	schema := append(append([]string{}, history.Schema...), audit.Schema...)
	if err := utils.ApplySchema(rootCtx, db, schema...); err != nil {
		log.Error("schema apply failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	res, err := newResolver(cfg.Resolver)
	if err != nil {
		log.Error("resolver init failed", "err", err)
		os.Exit(1)
	}
	answers := cache.NewRedisCache(rdb, cache.Options{Prefix: cfg.Cache.Prefix, MaxTTL: cfg.Cache.MaxTTL})
	res.Cache = answers

	lookups := history.NewPostgresRepo(db)
	h := httpapi.Handlers{
		Auth:      authManager,
		Resolver:  res,
		Cache:     answers,
		History:   history.NewService(lookups),
		Reporting: reporting.NewService(reporting.FromHistory(lookups)),
		Audit:     audit.NewService(audit.NewPostgresRepo(db)),

		AdminAPIKey:   cfg.Auth.AdminAPIKey,
		AdminClientID: cfg.Auth.AdminClientID,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/readyz"))

	registerRoutes(r, routeDeps{
		handlers: h,
		authMW:   auth.RequireAccessToken(authManager),
		limitMW: limiter.RequireSlot(rdb, limiter.Options{
			Limit:  cfg.Limit.ConcurrentPerClient,
			Prefix: cfg.Cache.Prefix + "limit:resolve:",
		}),
		ready: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "protocol", cfg.Resolver.Protocol)
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
}

// newResolver builds the iterative resolver described by cfg.
func newResolver(cfg config.ResolverConfig) (*resolver.Resolver, error) {
	p, err := transport.ParseProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	roots, err := resolver.ParseRootServers(cfg.RootServers)
	if err != nil {
		return nil, err
	}
	r, err := resolver.NewForProtocol(p, transport.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	r.Roots = roots
	r.MaxAttempts = cfg.MaxAttempts
	r.MaxDepth = cfg.MaxDepth
	r.FollowCNAME = cfg.FollowCNAME
	return r, nil
}
