package bot

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/config"
	"geez-bingo/internal/engine"
	"geez-bingo/internal/model"
)

// PlayerLookup finds the wallet registered for a Telegram user.
type PlayerLookup interface {
	GetUser(ctx context.Context, externalID int64) (*model.User, error)
}

// lookupTimeout bounds the registration check made for private messages.
const lookupTimeout = 3 * time.Second

// AccessMiddleware limits the bot to the configured group chats.
// Private chats are served when no chats are configured, or when the sender
// already holds a wallet, so private access survives restarts.
func AccessMiddleware(cfg *config.BotConfig, players PlayerLookup) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()
			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type != tele.ChatPrivate {
				if !cfg.IsChatAllowed(chat.ID) {
					log.Debug().
						Int64("chat_id", chat.ID).
						Msg("Ignoring command from chat not in allowed_chats")
					return nil
				}
				return next(c)
			}

			if len(cfg.AllowedChats) == 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
			defer cancel()

			_, err := players.GetUser(ctx, sender.ID)
			switch {
			case err == nil:
				return next(c)
			case errors.Is(err, engine.ErrUserNotFound):
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from unregistered player")
				return c.Reply("👋 Join a game in one of our groups first, then you can play here")
			default:
				log.Error().Err(err).
					Int64("user_id", sender.ID).
					Msg("Failed to check player registration")
				return c.Reply("❌ Could not check your account, please try again later")
			}
		}
	}
}

// AdminMiddleware lets only configured admins through.
func AdminMiddleware(cfg *config.BotConfig) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ Only game admins can do that")
			}

			return next(c)
		}
	}
}

// RequestMiddleware logs each command with its outcome and latency, and
// turns a handler panic into an apology to the player.
func RequestMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			start := time.Now()

			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("command", c.Text()).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Something went wrong, please try again later")
				}

				ev := log.Debug()
				if err != nil {
					ev = log.Warn().Err(err)
				}
				if sender := c.Sender(); sender != nil {
					ev = ev.Int64("user_id", sender.ID)
				}
				if chat := c.Chat(); chat != nil {
					ev = ev.Int64("chat_id", chat.ID)
				}
				ev.Str("command", c.Text()).
					Dur("latency", time.Since(start)).
					Msg("Handled command")
			}()

			return next(c)
		}
	}
}
