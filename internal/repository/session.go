package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"geez-bingo/internal/model"
)

const sessionColumns = `id, status, entry_fee, win_pattern, pot_amount, payout, called_numbers,
	current_number, winner_player_id, created_at, started_at, ended_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.Status,
		&s.EntryFee,
		&s.Pattern,
		&s.Pot,
		&s.Payout,
		&s.Called,
		&s.CurrentNumber,
		&s.WinnerPlayerID,
		&s.CreatedAt,
		&s.StartedAt,
		&s.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession creates a waiting session with the given fee and pattern.
// Returns ErrOpenSessionExists if another session is already waiting.
func (q *queries) CreateSession(ctx context.Context, entryFee int64, pattern string) (*model.Session, error) {
	const query = `
		INSERT INTO sessions (status, entry_fee, win_pattern, pot_amount, payout, called_numbers, created_at)
		VALUES ('waiting', $1, $2, 0, 0, '{}', NOW())
		RETURNING ` + sessionColumns

	s, err := scanSession(q.db.QueryRow(ctx, query, entryFee, pattern))
	if err != nil {
		if cErr := constraintError(err); cErr != nil {
			return nil, cErr
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s, nil
}

// GetSession retrieves a session by id.
// Returns ErrSessionNotFound if the session does not exist.
func (q *queries) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// UpdateSession writes the mutable session fields.
// Entry fee and pattern are fixed at creation and never written.
func (q *queries) UpdateSession(ctx context.Context, s *model.Session) error {
	const query = `
		UPDATE sessions
		SET status = $2, pot_amount = $3, payout = $4, called_numbers = $5,
			current_number = $6, winner_player_id = $7, started_at = $8, ended_at = $9
		WHERE id = $1
	`

	result, err := q.db.Exec(ctx, query,
		s.ID,
		s.Status,
		s.Pot,
		s.Payout,
		nonNil(s.Called),
		s.CurrentNumber,
		s.WinnerPlayerID,
		s.StartedAt,
		s.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// ListSessionsByStatus returns sessions in the given state, oldest first.
func (q *queries) ListSessionsByStatus(ctx context.Context, status model.SessionStatus) ([]*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE status = $1 ORDER BY id`

	rows, err := q.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
