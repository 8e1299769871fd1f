// Package main is the entry point for the bingo game server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"geez-bingo/internal/api"
	"geez-bingo/internal/bot"
	"geez-bingo/internal/config"
	"geez-bingo/internal/engine"
	"geez-bingo/internal/ledger"
	"geez-bingo/internal/notify"
	"geez-bingo/internal/pkg/db"
	"geez-bingo/internal/pkg/lock"
	"geez-bingo/internal/repository"
	"geez-bingo/internal/repository/memory"
	"geez-bingo/internal/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]api.HealthCheck{}

	// Initialize storage
	var store repository.Store
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory store, state is lost on restart")
		store = memory.New()
	default:
		dbPool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		if err := db.Migrate(ctx, dbPool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}

		store = repository.NewPgStore(dbPool.Pool)
		checks["database"] = dbPool.HealthCheck
	}

	// Initialize bot first so its sender can back the announcement sink
	var telegramBot *bot.Bot
	if cfg.Bot.Token != "" {
		telegramBot, err = bot.New(&cfg.Bot)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
	} else {
		log.Info().Msg("Bot token not set, Telegram bot disabled")
	}

	// Initialize notification sinks
	hub := notify.NewHub()
	sinks := []notify.Sink{hub}
	var routerOpts []api.Option

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		redisSink := notify.NewRedisSink(rdb, cfg.Redis.ChannelPrefix)
		sinks = append(sinks, redisSink)
		routerOpts = append(routerOpts, api.WithLastEvents(redisSink))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis event publisher enabled")
	}

	if telegramBot != nil && cfg.Bot.AnnounceChatID != 0 {
		sinks = append(sinks, notify.NewTelegramSink(telegramBot.GetBot(), cfg.Bot.AnnounceChatID))
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.QueueSize, sinks...)
	routerOpts = append(routerOpts, api.WithDropCounter(dispatcher))

	// Initialize engine
	opts := engine.OptionsFromConfig(cfg.Game)
	opts.Notifier = dispatcher

	eng, err := engine.New(store, ledger.New(store, lock.NewUserLock()), opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create game engine")
	}

	recovered, err := eng.Recover(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to recover sessions")
	}
	if _, err := eng.OpenSession(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to open session")
	}

	log.Info().
		Int("recovered", recovered).
		Int64("entry_fee", opts.EntryFee).
		Str("pattern", string(opts.Pattern)).
		Dur("call_interval", opts.CallInterval).
		Msg("Game engine ready")

	// Initialize auto-start
	var autoStarter *scheduler.AutoStarter
	if cfg.AutoStart.Enabled {
		autoStarter, err = scheduler.NewAutoStarter(eng, cfg.AutoStart)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create auto-start scheduler")
		}
		if err := autoStarter.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start auto-start scheduler")
		}
	}

	// Start HTTP server
	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(eng, hub, checks, routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if telegramBot != nil {
		telegramBot.Register(eng)
		go telegramBot.Start()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if autoStarter != nil {
		if err := autoStarter.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop auto-start scheduler")
		}
	}
	if telegramBot != nil {
		telegramBot.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	hub.Close()
	eng.Close()
	dispatcher.Close()

	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
