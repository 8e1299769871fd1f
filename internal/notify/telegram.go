package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/engine"
)

// Sender is the part of *tele.Bot used for announcements.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramSink announces round milestones in a chat. Per-call events are
// skipped to stay within Telegram rate limits.
type TelegramSink struct {
	sender Sender
	chat   tele.Recipient
}

var _ Sink = (*TelegramSink)(nil)

// NewTelegramSink creates a sink posting to chatID.
func NewTelegramSink(sender Sender, chatID int64) *TelegramSink {
	return &TelegramSink{sender: sender, chat: tele.ChatID(chatID)}
}

// Name implements Sink.
func (s *TelegramSink) Name() string { return "telegram" }

// Publish implements Sink.
func (s *TelegramSink) Publish(_ context.Context, topic int64, ev engine.Event) error {
	text, ok := announcement(topic, ev)
	if !ok {
		return nil
	}
	if _, err := s.sender.Send(s.chat, text); err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	return nil
}

func announcement(topic int64, ev engine.Event) (string, bool) {
	switch data := ev.Data.(type) {
	case engine.GameStarted:
		return fmt.Sprintf(
			"🎱 Game #%d started!\n\n"+
				"Players: %d\n"+
				"Pot: %d\n"+
				"Pattern: %s",
			topic, data.PlayerCount, data.PotAmount, data.Pattern,
		), true
	case engine.Winner:
		return fmt.Sprintf(
			"🏆 BINGO! Game #%d\n\n"+
				"%s wins %d with card #%d on %s",
			topic, data.Winner, data.PotAmount, data.CardNumber, data.Number,
		), true
	case engine.GameEnded:
		return fmt.Sprintf(
			"🔚 Game #%d ended (%s) after %d calls. Unclaimed pot: %d",
			topic, data.Reason, data.CalledCount, data.PotAmount,
		), true
	default:
		return "", false
	}
}
