package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ChangeChannel is the NOTIFY channel that carries row change events.
const ChangeChannel = "typerush_changes"

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				lives INTEGER NOT NULL DEFAULT 0 CHECK (lives >= 0),
				best_score INTEGER NOT NULL DEFAULT 0,
				best_combo INTEGER NOT NULL DEFAULT 0,
				total_spent NUMERIC(12, 2) NOT NULL DEFAULT 0,
				payment_count INTEGER NOT NULL DEFAULT 0,
				last_payment_date TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`,
	},
	{
		name: "users indexes",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_users_best_score ON users (best_score DESC);
			CREATE INDEX IF NOT EXISTS idx_users_username ON users (username);
			CREATE INDEX IF NOT EXISTS idx_users_total_spent ON users (total_spent DESC) WHERE total_spent > 0
		`,
	},
	{
		name: "payments",
		sql: `
			CREATE TABLE IF NOT EXISTS payments (
				id BIGSERIAL PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				payment_type TEXT NOT NULL,
				amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
				payment_count INTEGER NOT NULL DEFAULT 1,
				first_payment_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_payment_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, payment_type)
			)
		`,
	},
	{
		name: "change notify function",
		sql: `
			CREATE OR REPLACE FUNCTION typerush_notify_change() RETURNS trigger AS $$
			DECLARE
				rec RECORD;
			BEGIN
				IF TG_OP = 'DELETE' THEN
					rec := OLD;
				ELSE
					rec := NEW;
				END IF;
				PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
					'table', TG_TABLE_NAME,
					'type', TG_OP,
					'row', row_to_json(rec)
				)::text);
				RETURN rec;
			END;
			$$ LANGUAGE plpgsql
		`,
	},
	{
		name: "users change trigger",
		sql: `
			DROP TRIGGER IF EXISTS users_notify_change ON users;
			CREATE TRIGGER users_notify_change
				AFTER INSERT OR UPDATE OR DELETE ON users
				FOR EACH ROW EXECUTE FUNCTION typerush_notify_change()
		`,
	},
	{
		name: "payments change trigger",
		sql: `
			DROP TRIGGER IF EXISTS payments_notify_change ON payments;
			CREATE TRIGGER payments_notify_change
				AFTER INSERT OR UPDATE OR DELETE ON payments
				FOR EACH ROW EXECUTE FUNCTION typerush_notify_change()
		`,
	},
}

// Migrate applies the database schema. Every step is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q failed: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("Migration applied")
	}
	return nil
}
