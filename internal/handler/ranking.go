package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/model"
)

const leaderboardSize = 10

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	engine Engine
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(eng Engine) *RankingHandler {
	return &RankingHandler{engine: eng}
}

// HandleTop handles the /top command.
// Displays the users with the highest balances.
func (h *RankingHandler) HandleTop(c tele.Context) error {
	users, err := h.engine.Leaderboard(context.Background(), leaderboardSize)
	if err != nil {
		return c.Reply("❌ Could not load the leaderboard, please try again later")
	}
	return c.Reply(formatLeaderboard(users))
}

func formatLeaderboard(users []*model.User) string {
	var b strings.Builder
	b.WriteString("🏆 Top players\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")

	if len(users) == 0 {
		b.WriteString("No players yet\n")
	}

	medals := []string{"🥇", "🥈", "🥉"}
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}

		name := u.Name
		if name == "" {
			name = fmt.Sprintf("User%d", u.ExternalID)
		}

		fmt.Fprintf(&b, "%s %s: %d\n", rank, name, u.Balance)
	}

	b.WriteString("━━━━━━━━━━━━━━━")
	return b.String()
}
