// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/engine"
	"geez-bingo/internal/model"
)

// Engine is the part of the game engine used by the command handlers.
type Engine interface {
	EnsureUser(ctx context.Context, externalID int64, name string) (*model.User, bool, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
	OpenSession(ctx context.Context) (*model.Session, error)
	PeekOpenSession(ctx context.Context) (*model.Session, bool, error)
	Join(ctx context.Context, sessionID, userID int64, cardNumber int) (*engine.JoinResult, error)
	Start(ctx context.Context, sessionID int64) error
	ListPlayers(ctx context.Context, sessionID int64) ([]*model.Player, error)
	AvailableCards(ctx context.Context, sessionID int64) ([]int, error)
	Leaderboard(ctx context.Context, limit int) ([]*model.User, error)
}

const historyLimit = 10

// AccountHandler handles account-related commands.
type AccountHandler struct {
	engine Engine
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(eng Engine) *AccountHandler {
	return &AccountHandler{engine: eng}
}

// displayName picks the name shown to other players.
func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ensureSender returns the wallet of the message sender, registering it if needed.
func ensureSender(ctx context.Context, eng Engine, c tele.Context) (*model.User, bool, error) {
	sender := c.Sender()
	if sender == nil {
		return nil, false, fmt.Errorf("message has no sender")
	}
	return eng.EnsureUser(ctx, sender.ID, displayName(sender))
}

// HandleStart handles the /start command.
// Registers the sender with the opening balance if they are new.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}

	user, created, err := ensureSender(context.Background(), h.engine, c)
	if err != nil {
		return c.Reply("❌ Could not create your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome %s!\n\n"+
				"Your wallet has been created with %d tokens.\n\n"+
				"Commands:\n"+
				"/balance - show your balance\n"+
				"/history - recent transactions\n"+
				"/game - current game\n"+
				"/cards - free card numbers\n"+
				"/join <card> - buy a card in the open game\n"+
				"/play - start the open game",
			user.Name, user.Balance,
		))
	}

	return c.Reply(fmt.Sprintf(
		"👋 Welcome back %s!\n\n"+
			"Balance: %d tokens",
		user.Name, user.Balance,
	))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}

	user, _, err := ensureSender(context.Background(), h.engine, c)
	if err != nil {
		return c.Reply("❌ Could not load your balance, please try again later")
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %d tokens", user.Balance))
}

// HandleHistory handles the /history command.
// Displays the sender's most recent ledger entries.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}

	ctx := context.Background()
	user, _, err := ensureSender(ctx, h.engine, c)
	if err != nil {
		return c.Reply("❌ Could not load your account, please try again later")
	}

	txs, err := h.engine.Transactions(ctx, user.ID, historyLimit)
	if err != nil {
		return c.Reply("❌ Could not load your history, please try again later")
	}

	return c.Reply(formatHistory(user, txs))
}

func formatHistory(user *model.User, txs []*model.Transaction) string {
	if len(txs) == 0 {
		return "📜 No transactions yet"
	}

	var sb strings.Builder
	sb.WriteString("📜 Recent transactions\n")
	sb.WriteString("━━━━━━━━━━━━━━━\n")
	for _, tx := range txs {
		game := ""
		if tx.SessionID != nil {
			game = fmt.Sprintf(" (game #%d)", *tx.SessionID)
		}
		fmt.Fprintf(&sb, "%s %+d%s\n", tx.Kind, tx.Amount, game)
	}
	sb.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&sb, "💰 Balance: %d tokens", user.Balance)
	return sb.String()
}
