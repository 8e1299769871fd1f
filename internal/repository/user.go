package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"geez-bingo/internal/model"
)

const userColumns = `id, external_id, name, balance, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Name,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a user with the given external id and opening balance.
// Returns ErrUserExists if the external id is already registered.
func (q *queries) CreateUser(ctx context.Context, externalID int64, name string, balance int64) (*model.User, error) {
	const query = `
		INSERT INTO users (external_id, name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(q.db.QueryRow(ctx, query, externalID, name, balance))
	if err != nil {
		if cErr := constraintError(err); cErr != nil {
			return nil, cErr
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUser retrieves a user by internal id.
// Returns ErrUserNotFound if the user does not exist.
func (q *queries) GetUser(ctx context.Context, id int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByExternalID retrieves a user by external id.
// Returns ErrUserNotFound if the user does not exist.
func (q *queries) GetUserByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`

	user, err := scanUser(q.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpdateBalance adds delta (which may be negative) to a user's balance.
// The guard in the WHERE clause makes the check and the write one statement,
// so a concurrent debit can never overdraw the wallet.
// Returns ErrInsufficientFunds when the result would be negative.
func (q *queries) UpdateBalance(ctx context.Context, userID int64, delta int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING ` + userColumns

	user, err := scanUser(q.db.QueryRow(ctx, query, userID, delta))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if cErr := constraintError(err); cErr != nil {
			return nil, cErr
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	// No row updated: either the user is missing or the guard rejected it.
	if _, err := q.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return nil, ErrInsufficientFunds
}

// ListTopUsers retrieves the top N users by balance.
func (q *queries) ListTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY balance DESC, id ASC
		LIMIT $1
	`

	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
