package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cacheredis "github.com/leadsight-lab/leadsight/internal/cache/redis"
	corecfg "github.com/leadsight-lab/leadsight/internal/core/config"
	"github.com/leadsight-lab/leadsight/internal/core/storage/postgres"
	"github.com/leadsight-lab/leadsight/internal/identity"
	"github.com/leadsight-lab/leadsight/internal/ingestion"
	"github.com/leadsight-lab/leadsight/internal/links"
	"github.com/leadsight-lab/leadsight/internal/migrations"
	"github.com/leadsight-lab/leadsight/internal/projection"
	"github.com/leadsight-lab/leadsight/internal/server"
	"github.com/leadsight-lab/leadsight/internal/webhook"
)

func main() {
	configPath := flag.String("config", "leadsight.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize the fast-path cache. Resolution degrades to
	// store-only when disabled, so a nil cache here is fine.
	var leadCache identity.LeadCache
	var cacheHealth server.HealthChecker
	if cfg.Cache.Enabled {
		ttl, err := cfg.Cache.ParsedTTL()
		if err != nil {
			slog.Error("Invalid cache TTL", "value", cfg.Cache.TTL, "error", err)
			os.Exit(1)
		}
		redisCache := cacheredis.New(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, ttl)
		defer redisCache.Close()
		leadCache = redisCache
		cacheHealth = redisCache
		slog.Info("Fast-path cache enabled", "addr", cfg.Cache.Addr, "ttl", ttl)
	} else {
		leadCache = identity.NopCache{}
		slog.Info("Fast-path cache disabled, resolution is store-only")
	}

	// 4. Initialize the identity core
	resolver := identity.NewResolver(dbAdapter, leadCache)
	stitcher := identity.NewStitcher(dbAdapter, leadCache)
	linkResolver := identity.NewLinkResolver(dbAdapter, dbAdapter, leadCache)

	// 5. Initialize the HTTP surfaces
	ingestionSvc := ingestion.NewService(resolver, stitcher, dbAdapter, cfg.Server.MaxBodySizeMB)
	linksSvc := links.NewService(dbAdapter, dbAdapter, linkResolver, links.Config{
		BaseURL:             cfg.Tracking.BaseURL,
		FallbackURL:         cfg.Tracking.FallbackURL,
		CookieName:          cfg.Tracking.CookieName,
		CookieMaxAgeSeconds: cfg.Tracking.CookieMaxAgeDays * 24 * 60 * 60,
	})
	webhookSvc := webhook.NewService(stitcher, dbAdapter, dbAdapter, dbAdapter)
	projectionSvc := projection.NewService(dbAdapter)

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cacheHealth, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	linksSvc.RegisterRoutes(srv.Engine)
	webhookSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
