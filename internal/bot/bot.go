// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/config"
	"geez-bingo/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.BotConfig

	accountHandler *handler.AccountHandler
	gameHandler    *handler.GameHandler
	rankingHandler *handler.RankingHandler
	adminHandler   *handler.AdminHandler
}

// New creates a new Bot instance. Nothing is served until Register is called.
func New(cfg *config.BotConfig) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Bot handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		bot: teleBot,
		cfg: cfg,
	}, nil
}

// Engine is what the command handlers need from the game engine.
type Engine interface {
	handler.Engine
	handler.Adjuster
	PlayerLookup
}

// Register wires the command handlers to eng. It must be called before Start.
func (b *Bot) Register(eng Engine) {
	b.accountHandler = handler.NewAccountHandler(eng)
	b.gameHandler = handler.NewGameHandler(eng)
	b.rankingHandler = handler.NewRankingHandler(eng)
	b.adminHandler = handler.NewAdminHandler(eng)
	b.registerMiddleware(eng)
	b.registerHandlers()
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware(players PlayerLookup) {
	b.bot.Use(RequestMiddleware())
	b.bot.Use(AccessMiddleware(b.cfg, players))
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)

	// Game handlers
	b.bot.Handle("/game", b.gameHandler.HandleGame)
	b.bot.Handle("/cards", b.gameHandler.HandleCards)
	b.bot.Handle("/join", b.gameHandler.HandleJoin)

	// Ranking handlers
	b.bot.Handle("/top", b.rankingHandler.HandleTop)

	// Without configured admins /play is open and balance corrections are off.
	if len(b.cfg.Admins) > 0 {
		adminGroup := b.bot.Group()
		adminGroup.Use(AdminMiddleware(b.cfg))
		adminGroup.Handle("/play", b.gameHandler.HandlePlay)
		adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
		adminGroup.Handle("/admin_sub", b.adminHandler.HandleAdminSub)
	} else {
		b.bot.Handle("/play", b.gameHandler.HandlePlay)
	}
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
