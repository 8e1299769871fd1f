package repository

import (
	"context"
	"fmt"

	"geez-bingo/internal/model"
)

// CreateTransaction appends a ledger entry.
func (q *queries) CreateTransaction(ctx context.Context, tx *model.Transaction) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (user_id, kind, amount, session_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, kind, amount, session_id, created_at
	`

	var out model.Transaction
	err := q.db.QueryRow(ctx, query, tx.UserID, tx.Kind, tx.Amount, tx.SessionID).Scan(
		&out.ID,
		&out.UserID,
		&out.Kind,
		&out.Amount,
		&out.SessionID,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &out, nil
}

// ListTransactions returns a user's transactions, newest first.
// A non-positive limit returns the full history.
func (q *queries) ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, kind, amount, session_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`

	if limit < 0 {
		limit = 0
	}

	rows, err := q.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Kind,
			&tx.Amount,
			&tx.SessionID,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}
