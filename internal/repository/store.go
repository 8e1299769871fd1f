// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"geez-bingo/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrSessionNotFound   = errors.New("session not found")
	ErrOpenSessionExists = errors.New("an open session already exists")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrCardTaken         = errors.New("card number already taken")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Constraint names used to translate unique violations.
const (
	constraintUserExternalID = "users_external_id_key"
	constraintOneWaiting     = "sessions_one_waiting_idx"
	constraintSessionCard    = "players_session_card_key"
	pgUniqueViolation        = "23505"
	pgCheckViolation         = "23514"
)

// Queries is the set of row-level operations the engine performs.
// Each call is atomic on its own; WithTx groups several into one unit.
type Queries interface {
	CreateUser(ctx context.Context, externalID int64, name string, balance int64) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*model.User, error)
	// UpdateBalance adds delta to the balance, refusing to go below zero.
	UpdateBalance(ctx context.Context, userID int64, delta int64) (*model.User, error)
	// ListTopUsers returns up to limit users by descending balance, ties by id.
	ListTopUsers(ctx context.Context, limit int) ([]*model.User, error)

	CreateTransaction(ctx context.Context, tx *model.Transaction) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)

	CreateSession(ctx context.Context, entryFee int64, pattern string) (*model.Session, error)
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	UpdateSession(ctx context.Context, s *model.Session) error
	ListSessionsByStatus(ctx context.Context, status model.SessionStatus) ([]*model.Session, error)

	CreatePlayer(ctx context.Context, p *model.Player) (*model.Player, error)
	UpdatePlayer(ctx context.Context, p *model.Player) error
	// ListPlayers returns a session's players in ascending id order.
	ListPlayers(ctx context.Context, sessionID int64) ([]*model.Player, error)
}

// Store is a Queries implementation that can run a function atomically.
// If fn returns an error every write made through q is discarded.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements Queries on top of any DBTX.
type queries struct {
	db DBTX
}

// PgStore is the PostgreSQL Store.
type PgStore struct {
	queries
	pool *pgxpool.Pool
}

// NewPgStore creates a new PgStore on an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{queries: queries{db: pool}, pool: pool}
}

// WithTx runs fn inside a database transaction.
func (s *PgStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// constraintError maps a constraint violation to a repository error, or returns nil.
func constraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintUserExternalID:
		return ErrUserExists
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintOneWaiting:
		return ErrOpenSessionExists
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintSessionCard:
		return ErrCardTaken
	case pgErr.Code == pgCheckViolation:
		return ErrInsufficientFunds
	}
	return nil
}

// nonNil keeps NOT NULL text[] columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
