package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names an observable session transition.
type EventType string

// Session events, in the order a round produces them.
const (
	EventPlayerJoined EventType = "player_joined"
	EventGameStarted  EventType = "game_started"
	EventNumberCalled EventType = "number_called"
	EventWinner       EventType = "winner"
	EventGameEnded    EventType = "game_ended"
)

// Event is what the engine hands to its Notifier. ID is unique per event so
// downstream consumers can drop duplicates.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID int64     `json:"game_id"`
	At        time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// PlayerJoined is the payload of EventPlayerJoined.
type PlayerJoined struct {
	PlayerCount int    `json:"player_count"`
	PotAmount   int64  `json:"pot_amount"`
	CardNumber  int    `json:"card_number"`
	Name        string `json:"name"`
}

// GameStarted is the payload of EventGameStarted.
type GameStarted struct {
	PlayerCount int    `json:"player_count"`
	PotAmount   int64  `json:"pot_amount"`
	Pattern     string `json:"win_pattern"`
}

// NumberCalled is the payload of EventNumberCalled.
type NumberCalled struct {
	Number      string `json:"number"`
	CalledCount int    `json:"called_count"`
}

// Winner is the payload of EventWinner.
type Winner struct {
	Winner     string `json:"winner"`
	UserID     int64  `json:"user_id"`
	PotAmount  int64  `json:"pot_amount"`
	CardNumber int    `json:"card_number"`
	Number     string `json:"number"`
}

// GameEnded is the payload of EventGameEnded.
type GameEnded struct {
	Reason      string `json:"reason"`
	PotAmount   int64  `json:"pot_amount"`
	CalledCount int    `json:"called_count"`
}

// Notifier receives session events. Publish must not block on delivery;
// the engine never learns whether an observer got the event.
type Notifier interface {
	Publish(ctx context.Context, topic int64, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, int64, Event) {}

func newEvent(t EventType, sessionID int64, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		At:        time.Now().UTC(),
		Data:      data,
	}
}
