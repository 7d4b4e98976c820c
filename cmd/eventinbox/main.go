package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/eventinbox-lab/eventinbox/internal/core/config"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage/postgres"
	"github.com/eventinbox-lab/eventinbox/internal/inbox"
	"github.com/eventinbox-lab/eventinbox/internal/ingestion"
	"github.com/eventinbox-lab/eventinbox/internal/janitor"
	"github.com/eventinbox-lab/eventinbox/internal/lifecycle"
	"github.com/eventinbox-lab/eventinbox/internal/migrations"
	"github.com/eventinbox-lab/eventinbox/internal/notify"
	"github.com/eventinbox-lab/eventinbox/internal/pagination"
	"github.com/eventinbox-lab/eventinbox/internal/ratelimit"
	"github.com/eventinbox-lab/eventinbox/internal/server"
)

func main() {
	configPath := flag.String("config", "eventinbox.yaml", "Path to configuration file")
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
	if cfg.Pagination.Secret == corecfg.DefaultPaginationSecret {
		slog.Warn("Using the default pagination secret; set pagination.secret before exposing this service")
	}

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

	// 3. Initialize Pagination Cursor Codec
	cursors, err := pagination.NewCodec(cfg.Pagination.Secret)
	if err != nil {
		slog.Error("Failed to initialize cursor codec", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Notification Outbox
	var publisher notify.Publisher = notify.Nop{}
	if cfg.Outbox.Enabled {
		outbox, err := notify.NewOutboxPublisher(dbAdapter.DB())
		if err != nil {
			slog.Error("Failed to initialize notification outbox", "error", err)
			os.Exit(1)
		}
		defer outbox.Close()
		publisher = outbox
	}

	// 5. Initialize Services
	ingestionSvc := ingestion.NewService(dbAdapter, publisher, cfg.Events.TTLDays)
	inboxSvc := inbox.NewService(dbAdapter, cursors, cfg.Inbox.TTL())
	lifecycleSvc := lifecycle.NewService(dbAdapter)

	// 6. Initialize Rate Limiter
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewLimiter(dbAdapter.DB(), cfg.RateLimit.RequestsPerMinute)
		if err != nil {
			slog.Error("Failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		defer limiter.Close()
	}

	// 7. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)

	api := srv.Engine.Group("/", server.RequireOwner())
	if limiter != nil {
		api.Use(ratelimit.Middleware(limiter))
	}
	ingestionSvc.RegisterRoutes(api)
	inboxSvc.RegisterRoutes(api)
	lifecycleSvc.RegisterRoutes(api)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Janitor.Enabled {
		j := janitor.New(cfg.Janitor.IntervalDuration(), cfg.Janitor.BatchSize, dbAdapter, limiter)
		go func() {
			if err := j.Start(ctx); err != nil {
				slog.Error("Janitor stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Janitor disabled by config")
	}

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
