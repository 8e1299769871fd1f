package repository

import (
	"context"
	"fmt"

	"geez-bingo/internal/model"
)

// CreatePlayer adds a player to a session.
// Returns ErrCardTaken if the card number is already used in that session.
func (q *queries) CreatePlayer(ctx context.Context, p *model.Player) (*model.Player, error) {
	const query = `
		INSERT INTO players (session_id, user_id, card_number, marked_numbers, has_won, joined_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING id, joined_at
	`

	out := p.Clone()
	out.Marked = nonNil(out.Marked)
	out.Won = false
	err := q.db.QueryRow(ctx, query, p.SessionID, p.UserID, p.CardNumber, out.Marked).Scan(
		&out.ID,
		&out.JoinedAt,
	)
	if err != nil {
		if cErr := constraintError(err); cErr != nil {
			return nil, cErr
		}
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return out, nil
}

// UpdatePlayer writes a player's marks and won flag.
func (q *queries) UpdatePlayer(ctx context.Context, p *model.Player) error {
	const query = `
		UPDATE players
		SET marked_numbers = $2, has_won = $3
		WHERE id = $1
	`

	result, err := q.db.Exec(ctx, query, p.ID, nonNil(p.Marked), p.Won)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}

	return nil
}

// ListPlayers returns a session's players with their user names, in ascending id order.
func (q *queries) ListPlayers(ctx context.Context, sessionID int64) ([]*model.Player, error) {
	const query = `
		SELECT p.id, p.session_id, p.user_id, u.name, p.card_number, p.marked_numbers, p.has_won, p.joined_at
		FROM players p
		JOIN users u ON u.id = p.user_id
		WHERE p.session_id = $1
		ORDER BY p.id
	`

	rows, err := q.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*model.Player
	for rows.Next() {
		var p model.Player
		err := rows.Scan(
			&p.ID,
			&p.SessionID,
			&p.UserID,
			&p.UserName,
			&p.CardNumber,
			&p.Marked,
			&p.Won,
			&p.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}

	return players, nil
}
