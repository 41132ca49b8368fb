// Package main is the entry point for the TelcoRewards server: the REST API
// plus the optional Telegram companion bot.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telco-rewards/internal/api"
	"telco-rewards/internal/bot"
	"telco-rewards/internal/config"
	"telco-rewards/internal/pkg/db"
	"telco-rewards/internal/pkg/lock"
	"telco-rewards/internal/repository"
	"telco-rewards/internal/service"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().Str("driver", cfg.Database.Driver).Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize stores
	var (
		stores service.Stores
		health api.HealthFunc
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		stores = service.MemoryStores()
	default:
		dbPool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		if err := db.Migrate(ctx, dbPool.Pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}

		stores = service.Stores{
			Users:       repository.NewUserRepository(dbPool.Pool),
			Sessions:    repository.NewSessionRepository(dbPool.Pool),
			Journal:     repository.NewJournalRepository(dbPool.Pool),
			Leaderboard: repository.NewLeaderboardRepository(dbPool.Pool),
		}
		health = dbPool.HealthCheck
	}

	// Initialize services
	progression := service.NewProgressionService(
		stores.Users,
		lock.NewUserLock(),
		service.WithMaxRetries(cfg.Rewards.MaxRetries),
		service.WithLockTimeout(cfg.Rewards.LockTimeout),
	)
	leaderboard := service.NewLeaderboardService(stores.Leaderboard, stores.Journal, cfg.Leaderboard, time.Local, progression.Now)
	progression.OnApplied(leaderboard.Invalidate)

	auth := service.NewAuthService(stores.Users, stores.Sessions, progression, cfg.Auth, cfg.Rewards.WelcomeTokens)
	profile := service.NewProfileService(stores.Users, stores.Journal, stores.Leaderboard)

	// Background jobs
	scheduler, err := service.NewScheduler(auth, cfg.Jobs.SessionCleanupInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	// HTTP API
	server := api.NewServer(api.Deps{
		Config:      cfg,
		Auth:        auth,
		Profile:     profile,
		Progression: progression,
		Leaderboard: leaderboard,
		Health:      health,
		Version:     version,
	})
	app := server.App()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("API is starting...")
		if err := app.Listen(cfg.Server.Addr); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Telegram companion bot
	var telegramBot *bot.Bot
	if cfg.BotEnabled() {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:      cfg,
			Auth:        auth,
			Profile:     profile,
			Progression: progression,
			Leaderboard: leaderboard,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go telegramBot.Start()
	} else {
		log.Info().Msg("Bot token not set, Telegram bot disabled")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if telegramBot != nil {
		telegramBot.Stop()
	}
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("API shutdown failed")
	}
	if err := scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// setupLogger applies the configured level and output format.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
