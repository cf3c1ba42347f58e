// Command brewmetric bootstraps a BrewMetric datastore: it runs migrations,
// provisions the default administrator when none exists, and optionally keeps
// a /metrics endpoint up for scraping. The core itself is consumed as a
// library; this binary is the operator console.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brewmetric/brewmetric-core/internal/audit"
	"github.com/brewmetric/brewmetric-core/internal/directory"
	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/brewmetric/brewmetric-core/pkg/db"
	"github.com/brewmetric/brewmetric-core/pkg/logger"
	"github.com/brewmetric/brewmetric-core/pkg/metrics"
	"github.com/brewmetric/brewmetric-core/pkg/migrate"
	"github.com/brewmetric/brewmetric-core/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "brewmetric"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "brewmetric",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if cfg.App.AutoMigrate {
		sqlDB, err := dbClient.DB().DB()
		if err != nil {
			logg.Error(ctx, "failed to get sql handle", err)
			os.Exit(1)
		}
		if err := migrate.Up(ctx, sqlDB, cfg.DB); err != nil {
			logg.Error(ctx, "failed to run migrations", err)
			os.Exit(1)
		}
		logg.Info(ctx, "migrations applied")
	}

	var feedCache audit.FeedCache
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Warn(ctx, "redis unavailable, activity feed cache disabled: "+err.Error())
		} else {
			defer func() { _ = redisClient.Close() }()
			feedCache = redisClient
			logg.Info(ctx, "activity feed cache enabled")
		}
	}

	var registry *prometheus.Registry
	var coreMetrics *metrics.CoreMetrics
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		coreMetrics = metrics.NewCoreMetrics(registry)
	} else {
		coreMetrics = metrics.NewCoreMetrics(nil)
	}

	auditRepo := audit.NewRepository(dbClient.DB())
	feed := audit.NewFeed(auditRepo, feedCache, logg, cfg.Policy.FeedCacheSize)
	auditSvc, err := audit.NewService(audit.ServiceParams{
		Repo:         auditRepo,
		Feed:         feed,
		Logger:       logg,
		Metrics:      coreMetrics,
		DefaultLimit: cfg.Policy.AuditQueryLimit,
	})
	if err != nil {
		logg.Error(ctx, "failed to create audit service", err)
		os.Exit(1)
	}

	dirSvc, err := directory.NewService(directory.ServiceParams{
		Client:   dbClient,
		Repo:     directory.NewRepository(dbClient.DB()),
		Audit:    auditSvc,
		Logger:   logg,
		Metrics:  coreMetrics,
		Password: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create directory service", err)
		os.Exit(1)
	}

	admin, created, err := dirSvc.EnsureDefaultAdmin(ctx)
	if err != nil {
		logg.Error(ctx, "failed to ensure default admin", err)
		os.Exit(1)
	}
	if created {
		// One-time disclosure; never logged again after bootstrap.
		fmt.Printf("Default administrator created.\n")
		fmt.Printf("  username: %s\n", directory.DefaultAdminUsername)
		fmt.Printf("  password: %s\n", directory.DefaultAdminPassword)
		fmt.Printf("Change this password after first login.\n")
	} else {
		logg.Info(logg.WithUserID(ctx, admin.ID), "administrator present, bootstrap skipped")
	}

	if !cfg.Metrics.Enabled {
		logg.Info(ctx, "bootstrap complete")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.Metrics.Addr), "metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "metrics server failed", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "metrics server shutdown failed", err)
	}
	logg.Info(ctx, "shutdown complete")
}
