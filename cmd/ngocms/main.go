// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cfph/ngocms-go/internal/auth"
	"github.com/cfph/ngocms-go/internal/cache"
	"github.com/cfph/ngocms-go/internal/config"
	"github.com/cfph/ngocms-go/internal/handler"
	"github.com/cfph/ngocms-go/internal/logging"
	"github.com/cfph/ngocms-go/internal/mailer"
	"github.com/cfph/ngocms-go/internal/middleware"
	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
	"github.com/cfph/ngocms-go/internal/scheduler"
	"github.com/cfph/ngocms-go/internal/session"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "ngoCMS - NGO content management backend\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_SESSION_SECRET   Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_DB_PATH          SQLite database path (default: ./data/ngocms.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_SMTP_HOST        SMTP relay host for the newsletter (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_REDIS_URL        Redis URL for distributed caching (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NGOCMS_DO_SEED          Create the first admin account on startup\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Printf("ngocms %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := rtdb.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := rtdb.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	store, err := rtdb.Open(db)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	feed := notify.New(store, cfg.NotificationRetention)

	// Upgrade logger to also mirror WARN and ERROR logs into the dashboard
	// activity feed
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewFeedHandler(textHandler, feed))
	slog.SetDefault(logger)
	slog.Info("activity feed integration enabled", "min_level", "warn")

	ctx := context.Background()

	// Seed the first admin account
	authn := auth.NewAuthenticator(store)
	if cfg.DoSeed {
		has, err := authn.HasAccounts(ctx)
		if err != nil {
			return fmt.Errorf("checking accounts: %w", err)
		}
		if !has {
			if _, err := authn.CreateAccount(ctx, cfg.SeedEmail, cfg.SeedPassword); err != nil {
				return fmt.Errorf("seeding admin account: %w", err)
			}
			slog.Info("seeded admin account", "email", cfg.SeedEmail)
		}
	}

	sessionManager := session.New(db, cfg.IsDevelopment())
	tracker := session.NewTracker(session.IdleTimeout)
	slog.Info("session manager initialized")

	cacher, err := cache.NewCache(cache.CacheConfig{
		RedisURL:        cfg.RedisURL,
		Prefix:          cfg.CachePrefix,
		DefaultTTL:      time.Duration(cfg.CacheTTL) * time.Second,
		MaxSize:         cfg.CacheMaxSize,
		CleanupInterval: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() {
		if err := cacher.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	if cfg.UseRedisCache() {
		slog.Info("cache initialized", "backend", "redis", "url", cfg.RedisURL)
	} else {
		slog.Info("cache initialized", "backend", "memory")
	}

	// Invalidate cached public lists when their collections change
	var publicCollections []string
	for _, sc := range schema.All() {
		if sc.PublicRead {
			publicCollections = append(publicCollections, sc.Path)
		}
	}
	invalidator, err := cache.NewInvalidator(store, cacher, publicCollections)
	if err != nil {
		return fmt.Errorf("starting cache invalidator: %w", err)
	}
	defer invalidator.Close()

	var mail *mailer.Mailer
	if cfg.MailEnabled() {
		mail, err = mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return fmt.Errorf("initializing mailer: %w", err)
		}
		slog.Info("newsletter relay enabled", "host", cfg.SMTPHost, "from", cfg.SMTPFrom)
	} else {
		slog.Warn("SMTP not configured, newsletter sending disabled")
	}

	protect := middleware.NewLoginProtection(middleware.LoginProtectionConfig{})

	h, err := handler.New(handler.Options{
		Store:    store,
		Feed:     feed,
		Sessions: sessionManager,
		Tracker:  tracker,
		Auth:     authn,
		Protect:  protect,
		Cache:    cacher,
		Mailer:   mail,
		Payment: handler.PaymentConfig{
			PublicKey:    cfg.MonnifyPublicKey,
			ContractCode: cfg.MonnifyContractCode,
		},
	})
	if err != nil {
		return fmt.Errorf("initializing handlers: %w", err)
	}
	defer h.Close()

	sched := scheduler.New(feed, tracker, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	router := h.Routes(handler.RouteOptions{
		CSRFKey:       []byte(cfg.SessionSecret),
		IsDev:         cfg.IsDevelopment(),
		AllowedOrigin: cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // the event stream endpoint holds responses open
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
