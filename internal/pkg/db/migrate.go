package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// migrations are idempotent and applied in order on every start.
var migrations = []migration{
	{
		name: "users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				external_id BIGINT NOT NULL,
				name VARCHAR(255) NOT NULL,
				balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT users_external_id_key UNIQUE (external_id)
			);
		`,
	},
	{
		name: "sessions table",
		sql: `
			CREATE TABLE IF NOT EXISTS sessions (
				id BIGSERIAL PRIMARY KEY,
				status VARCHAR(16) NOT NULL DEFAULT 'waiting',
				entry_fee BIGINT NOT NULL CHECK (entry_fee > 0),
				win_pattern VARCHAR(32) NOT NULL,
				pot_amount BIGINT NOT NULL DEFAULT 0,
				payout BIGINT NOT NULL DEFAULT 0,
				called_numbers TEXT[] NOT NULL DEFAULT '{}',
				current_number VARCHAR(8),
				winner_player_id BIGINT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				started_at TIMESTAMPTZ,
				ended_at TIMESTAMPTZ
			);
			CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_waiting_idx ON sessions ((status)) WHERE status = 'waiting';
			CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
		`,
	},
	{
		name: "players table",
		sql: `
			CREATE TABLE IF NOT EXISTS players (
				id BIGSERIAL PRIMARY KEY,
				session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				card_number INT NOT NULL,
				marked_numbers TEXT[] NOT NULL DEFAULT '{}',
				has_won BOOLEAN NOT NULL DEFAULT FALSE,
				joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT players_session_card_key UNIQUE (session_id, card_number)
			);
			CREATE INDEX IF NOT EXISTS idx_players_user ON players(user_id);
		`,
	},
	{
		name: "transactions table",
		sql: `
			CREATE TABLE IF NOT EXISTS transactions (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				kind VARCHAR(16) NOT NULL,
				amount BIGINT NOT NULL,
				session_id BIGINT REFERENCES sessions(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_transactions_session ON transactions(session_id);
		`,
	},
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
