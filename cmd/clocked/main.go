// Clocked Core - Private Group Activity Tracking
//
// This is the main entry point for the Clocked Core service. Clocked
// lets small private groups see what their members are up to right now:
// passwordless login, role-scoped groups, activity sessions, and
// real-time fan-out over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/clocked-app/clocked-core/migrations"

	"github.com/clocked-app/clocked-core/internal/api"
	"github.com/clocked-app/clocked-core/internal/auth"
	"github.com/clocked-app/clocked-core/internal/group"
	"github.com/clocked-app/clocked-core/internal/infrastructure/config"
	"github.com/clocked-app/clocked-core/internal/infrastructure/database"
	"github.com/clocked-app/clocked-core/internal/infrastructure/logging"
	"github.com/clocked-app/clocked-core/internal/infrastructure/telemetry"
	"github.com/clocked-app/clocked-core/internal/realtime"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// cleanupInterval is how often expired refresh tokens and magic links
// are purged from the database.
const cleanupInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Clocked Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	linkRepo := auth.NewMagicLinkRepository(db.DB)
	groupRepo := group.NewRepository(db.DB)

	// Auth components
	authority := auth.NewAuthority(tokenRepo, userRepo, auth.AuthorityConfig{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTokenDuration(),
		RefreshTTL: cfg.Auth.RefreshTokenDuration(),
	})
	issuer := auth.NewMagicLinkIssuer(linkRepo, userRepo, cfg.Auth.MagicLinkDuration())
	resolver := auth.NewPermissionResolver(groupRepo)
	log.Info("auth components initialised",
		"access_ttl", cfg.Auth.AccessTokenDuration(),
		"refresh_ttl", cfg.Auth.RefreshTokenDuration(),
	)

	// Connect to InfluxDB (optional)
	var tel *telemetry.Client
	if cfg.Telemetry.Enabled {
		tel, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := tel.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)

		tel.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
	} else {
		log.Info("telemetry disabled")
	}

	// Realtime hub and event router
	hub := realtime.NewHub(cfg.WebSocket, log, groupRepo, tel)
	go hub.Run(ctx)
	events := realtime.NewEventRouter(hub, log)
	log.Info("realtime hub started")

	// API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Auth:      cfg.Auth,
		Logger:    log,
		Authority: authority,
		Issuer:    issuer,
		Resolver:  resolver,
		Users:     userRepo,
		Groups:    groupRepo,
		Hub:       hub,
		Events:    events,
		Telemetry: tel,
		DevMode:   cfg.Service.Environment == "development",
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Periodic purge of expired credentials
	go cleanupLoop(ctx, log, tokenRepo, linkRepo)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server, tel); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Telemetry (if enabled)
	// 3. Database

	log.Info("Clocked Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CLOCKED_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CLOCKED_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// cleanupLoop purges expired refresh tokens and magic links on an
// hourly ticker until the context is cancelled.
func cleanupLoop(ctx context.Context, log *logging.Logger, tokens auth.TokenRepository, links auth.MagicLinkRepository) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := tokens.DeleteExpired(ctx); err != nil {
				log.Error("refresh token cleanup failed", "error", err)
			} else if n > 0 {
				log.Info("expired refresh tokens purged", "count", n)
			}
			if n, err := links.DeleteExpired(ctx); err != nil {
				log.Error("magic link cleanup failed", "error", err)
			} else if n > 0 {
				log.Info("expired magic links purged", "count", n)
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, tel *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if tel != nil {
		if err := tel.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}
