package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telco-rewards/internal/ledger"
)

type migration struct {
	name string
	sql  string
}

// migrations are idempotent and run in order on every start.
var migrations = []migration{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name VARCHAR(50) NOT NULL,
			email VARCHAR(255) NOT NULL,
			password_hash TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			tokens BIGINT NOT NULL DEFAULT 0,
			xp BIGINT NOT NULL DEFAULT 0,
			level INT NOT NULL DEFAULT 1,
			streak INT NOT NULL DEFAULT 1,
			last_login TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			language VARCHAR(8) NOT NULL DEFAULT 'en',
			tts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			telegram_id BIGINT,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT users_email_key UNIQUE (email),
			CONSTRAINT users_telegram_id_key UNIQUE (telegram_id),
			CONSTRAINT users_tokens_check CHECK (tokens >= 0),
			CONSTRAINT users_xp_check CHECK (xp >= 0)
		);
		CREATE INDEX IF NOT EXISTS idx_users_leaderboard ON users(tokens DESC, level DESC, created_at ASC);
		`,
	},
	{
		name: "user_activities table",
		sql: fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS user_activities (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			activity_id VARCHAR(%d) NOT NULL,
			tokens_earned BIGINT NOT NULL,
			xp_earned BIGINT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, activity_id)
		);
		`, ledger.MaxIDLength),
	},
	{
		name: "user_badges table",
		sql: fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS user_badges (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge_id VARCHAR(%d) NOT NULL,
			badge_name VARCHAR(%d) NOT NULL,
			badge_description TEXT NOT NULL DEFAULT '',
			badge_icon VARCHAR(%d) NOT NULL DEFAULT '',
			badge_rarity VARCHAR(16) NOT NULL DEFAULT 'common'
				CHECK (badge_rarity IN ('common', 'rare', 'epic', 'legendary')),
			earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, badge_id)
		);
		`, ledger.MaxIDLength, ledger.MaxBadgeNameLength, ledger.MaxBadgeIconLength),
	},
	{
		name: "user_perks table",
		sql: fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS user_perks (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			perk_id VARCHAR(%d) NOT NULL,
			perk_name VARCHAR(%d) NOT NULL,
			cost BIGINT NOT NULL CHECK (cost > 0),
			redeemed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_user_perks_user ON user_perks(user_id, redeemed_at);
		`, ledger.MaxIDLength, ledger.MaxPerkNameLength),
	},
	{
		name: "user_sessions table",
		sql: `
		CREATE TABLE IF NOT EXISTS user_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash CHAR(64) NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_user_sessions_expires ON user_sessions(expires_at);
		`,
	},
	{
		name: "ledger_entries table",
		sql: fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			tokens BIGINT NOT NULL DEFAULT 0,
			xp BIGINT NOT NULL DEFAULT 0,
			kind VARCHAR(32) NOT NULL,
			reference VARCHAR(%d) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_time ON ledger_entries(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_kind_time ON ledger_entries(kind, created_at DESC);
		`, ledger.MaxIDLength),
	},
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", i+1, m.name, err)
		}
		log.Debug().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Int("count", len(migrations)).Msg("All migrations completed successfully")
	return nil
}
