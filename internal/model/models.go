// Package model defines the data models for the bingo game engine.
package model

import "time"

// User represents a player account with an internal token wallet.
type User struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID int64     `db:"external_id" json:"external_id"`
	Name       string    `db:"name" json:"name"`
	Balance    int64     `db:"balance" json:"balance"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

// Session states. Transitions only move forward: waiting, active, ended.
const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
)

// Session is one bingo round.
// Pot holds the collected entry fees until settlement moves them to the winner;
// Payout records the amount that was paid out.
type Session struct {
	ID             int64         `db:"id" json:"id"`
	Status         SessionStatus `db:"status" json:"status"`
	EntryFee       int64         `db:"entry_fee" json:"entry_fee"`
	Pattern        string        `db:"win_pattern" json:"win_pattern"`
	Pot            int64         `db:"pot_amount" json:"pot_amount"`
	Payout         int64         `db:"payout" json:"payout"`
	Called         []string      `db:"called_numbers" json:"called_numbers"`
	CurrentNumber  *string       `db:"current_number" json:"current_number"`
	WinnerPlayerID *int64        `db:"winner_player_id" json:"winner_player_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	StartedAt      *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt        *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the session owner.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Called = append([]string(nil), s.Called...)
	if s.CurrentNumber != nil {
		v := *s.CurrentNumber
		c.CurrentNumber = &v
	}
	if s.WinnerPlayerID != nil {
		v := *s.WinnerPlayerID
		c.WinnerPlayerID = &v
	}
	if s.StartedAt != nil {
		v := *s.StartedAt
		c.StartedAt = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		c.EndedAt = &v
	}
	return &c
}

// Player links a user to a session through one card.
// The card itself is not stored; it is regenerated from CardNumber.
type Player struct {
	ID         int64     `db:"id" json:"id"`
	SessionID  int64     `db:"session_id" json:"session_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	UserName   string    `db:"name" json:"name"`
	CardNumber int       `db:"card_number" json:"card_number"`
	Marked     []string  `db:"marked_numbers" json:"marked_numbers"`
	Won        bool      `db:"has_won" json:"has_won"`
	JoinedAt   time.Time `db:"joined_at" json:"joined_at"`
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.Marked = append([]string(nil), p.Marked...)
	return &c
}

// Transaction is an immutable, signed ledger entry.
// For every user: initial balance + sum(Amount) == current balance.
type Transaction struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"type"`
	Amount    int64     `db:"amount" json:"amount"`
	SessionID *int64    `db:"session_id" json:"game_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Transaction kinds.
const (
	TxKindStake  = "stake"  // Entry fee paid to join a session
	TxKindWin    = "win"    // Pot paid to the session winner
	TxKindAdjust = "adjust" // Manual correction by an operator
)
