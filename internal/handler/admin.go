package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/engine"
	"geez-bingo/internal/model"
)

// Adjuster corrects wallet balances on an operator's behalf.
type Adjuster interface {
	Adjust(ctx context.Context, externalID, delta int64) (*model.User, error)
}

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	engine Adjuster
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(eng Adjuster) *AdminHandler {
	return &AdminHandler{engine: eng}
}

// HandleAdminAdd handles the /admin_add command.
// Format: /admin_add <telegram_id> <amount>
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	return h.adjust(c, "admin_add", 1)
}

// HandleAdminSub handles the /admin_sub command.
// Format: /admin_sub <telegram_id> <amount>
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	return h.adjust(c, "admin_sub", -1)
}

func (h *AdminHandler) adjust(c tele.Context, op string, sign int64) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, err := parseAdminArgs(c, op)
	if err != nil {
		return c.Reply(err.Error())
	}
	if amount <= 0 {
		return c.Reply("❌ Amount must be greater than 0")
	}

	user, err := h.engine.Adjust(context.Background(), targetID, sign*amount)
	switch {
	case errors.Is(err, engine.ErrUserNotFound):
		return c.Reply("❌ User not found")
	case errors.Is(err, engine.ErrInsufficientFunds):
		return c.Reply("❌ Balance too low for this deduction")
	case err != nil:
		return c.Reply("❌ Operation failed, please try again later")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Str("operation", op).
		Msg("Admin operation executed")

	verb := "➕ Added"
	if sign < 0 {
		verb = "➖ Deducted"
	}
	return c.Reply(fmt.Sprintf(
		"✅ Done\n\n"+
			"👤 User: %s (ID: %d)\n"+
			"%s: %d tokens\n"+
			"💰 Balance: %d tokens",
		user.Name, targetID, verb, amount, user.Balance,
	))
}

// parseAdminArgs parses "<telegram_id> <amount>".
func parseAdminArgs(c tele.Context, op string) (int64, int64, error) {
	args := c.Args()
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("❌ Usage: /%s <telegram_id> <amount>\nExample: /%s 123456789 100", op, op)
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("❌ User ID must be a number")
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("❌ Amount must be a whole number")
	}

	return targetID, amount, nil
}
