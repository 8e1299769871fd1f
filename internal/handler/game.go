package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/engine"
	"geez-bingo/internal/game/bingo"
	"geez-bingo/internal/model"
)

// maxListedCards caps how many free card numbers /cards prints.
const maxListedCards = 40

// GameHandler handles bingo round commands.
type GameHandler struct {
	engine Engine
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(eng Engine) *GameHandler {
	return &GameHandler{engine: eng}
}

// HandleGame handles the /game command.
// Shows the open game, creating one if none exists.
func (h *GameHandler) HandleGame(c tele.Context) error {
	ctx := context.Background()

	sess, err := h.engine.OpenSession(ctx)
	if err != nil {
		return c.Reply("❌ Could not load the current game, please try again later")
	}

	players, err := h.engine.ListPlayers(ctx, sess.ID)
	if err != nil {
		return c.Reply("❌ Could not load the current game, please try again later")
	}

	return c.Reply(formatGame(sess, players))
}

// HandleCards handles the /cards command.
func (h *GameHandler) HandleCards(c tele.Context) error {
	ctx := context.Background()

	sess, err := h.engine.OpenSession(ctx)
	if err != nil {
		return c.Reply("❌ Could not load the current game, please try again later")
	}

	free, err := h.engine.AvailableCards(ctx, sess.ID)
	if err != nil {
		return c.Reply("❌ Could not load free cards, please try again later")
	}

	return c.Reply(formatCards(sess.ID, free))
}

// HandleJoin handles the /join <card> command.
// Stakes the entry fee and assigns the card in the open game.
func (h *GameHandler) HandleJoin(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /join <card number>")
	}
	cardNumber, err := strconv.Atoi(args[0])
	if err != nil {
		return c.Reply("❌ Card number must be a number")
	}

	ctx := context.Background()
	user, _, err := ensureSender(ctx, h.engine, c)
	if err != nil {
		return c.Reply("❌ Could not load your account, please try again later")
	}

	sess, err := h.engine.OpenSession(ctx)
	if err != nil {
		return c.Reply("❌ Could not load the current game, please try again later")
	}

	res, err := h.engine.Join(ctx, sess.ID, user.ID, cardNumber)
	if err != nil {
		return c.Reply(joinError(err, sess.EntryFee))
	}

	return c.Reply(fmt.Sprintf(
		"✅ Joined game #%d with card #%d\n"+
			"Pot: %d\n\n"+
			"<pre>%s</pre>",
		res.Session.ID, cardNumber, res.Session.Pot, renderCard(res.Card),
	), tele.ModeHTML)
}

// HandlePlay handles the /play command.
// Starts the open game if it has players.
func (h *GameHandler) HandlePlay(c tele.Context) error {
	ctx := context.Background()

	sess, ok, err := h.engine.PeekOpenSession(ctx)
	if err != nil {
		return c.Reply("❌ Could not load the current game, please try again later")
	}
	if !ok {
		return c.Reply("ℹ️ No game is waiting for players. Use /game to open one")
	}

	if err := h.engine.Start(ctx, sess.ID); err != nil {
		switch {
		case errors.Is(err, engine.ErrNoPlayers):
			return c.Reply("⚠️ Nobody has joined yet")
		case errors.Is(err, engine.ErrAlreadyStarted), errors.Is(err, engine.ErrNotJoinable):
			return c.Reply("ℹ️ This game has already started")
		default:
			log.Error().Err(err).Int64("session_id", sess.ID).Msg("Failed to start game from bot")
			return c.Reply("❌ Could not start the game, please try again later")
		}
	}

	return c.Reply(fmt.Sprintf("🎱 Game #%d is starting!", sess.ID))
}

func joinError(err error, fee int64) string {
	switch {
	case errors.Is(err, engine.ErrInsufficientFunds):
		return fmt.Sprintf("❌ Insufficient balance, the entry fee is %d", fee)
	case errors.Is(err, engine.ErrCardTaken):
		return "❌ That card is already taken, see /cards"
	case errors.Is(err, engine.ErrInvalidCard):
		return "❌ No such card number, see /cards"
	case errors.Is(err, engine.ErrAlreadyJoined):
		return "❌ You already hold a card in this game"
	case errors.Is(err, engine.ErrNotJoinable):
		return "❌ This game is no longer accepting players"
	default:
		log.Error().Err(err).Msg("Join from bot failed")
		return "❌ Could not join, please try again later"
	}
}

func formatGame(sess *model.Session, players []*model.Player) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎱 Game #%d\n", sess.ID)
	sb.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&sb, "Status: %s\n", sess.Status)
	fmt.Fprintf(&sb, "Entry fee: %d\n", sess.EntryFee)
	fmt.Fprintf(&sb, "Pattern: %s\n", sess.Pattern)
	fmt.Fprintf(&sb, "Pot: %d\n", sess.Pot)
	fmt.Fprintf(&sb, "Players: %d\n", len(players))
	for _, p := range players {
		fmt.Fprintf(&sb, "  • %s (card #%d)\n", p.UserName, p.CardNumber)
	}
	if sess.CurrentNumber != nil {
		fmt.Fprintf(&sb, "Last call: %s (%d called)\n", *sess.CurrentNumber, len(sess.Called))
	}
	sb.WriteString("━━━━━━━━━━━━━━━")
	return sb.String()
}

func formatCards(sessionID int64, free []int) string {
	if len(free) == 0 {
		return fmt.Sprintf("🃏 Game #%d: every card is taken", sessionID)
	}

	shown := free
	if len(shown) > maxListedCards {
		shown = shown[:maxListedCards]
	}
	nums := make([]string, len(shown))
	for i, n := range shown {
		nums[i] = strconv.Itoa(n)
	}

	msg := fmt.Sprintf("🃏 Game #%d: %d free cards\n%s", sessionID, len(free), strings.Join(nums, " "))
	if len(free) > len(shown) {
		msg += " …"
	}
	return msg
}

// renderCard draws the card as a fixed-width grid.
func renderCard(card bingo.Card) string {
	var sb strings.Builder
	for col := range bingo.Letters {
		fmt.Fprintf(&sb, "%4c", bingo.Letters[col])
	}
	for row := range 5 {
		sb.WriteByte('\n')
		for col := range 5 {
			if card[col][row] == bingo.Free {
				sb.WriteString("  ★ ")
				continue
			}
			fmt.Fprintf(&sb, "%4d", card[col][row])
		}
	}
	return sb.String()
}
