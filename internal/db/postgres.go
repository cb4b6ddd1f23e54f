package db

import (
	"context"
	"fmt"
	"time"

	"scooter-ride/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	newPoolFn  = pgxpool.New
	pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

func ConnectPostgres(cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := newPoolFn(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := pingPoolFn(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const rideSessionsDDL = `
	CREATE TABLE IF NOT EXISTS ride_sessions (
		id               UUID PRIMARY KEY,
		email            TEXT NOT NULL DEFAULT '',
		scooter_id       TEXT NOT NULL,
		session_id       TEXT NOT NULL,
		started_at       TIMESTAMPTZ NOT NULL,
		ended_at         TIMESTAMPTZ,
		tokens_used      INTEGER NOT NULL DEFAULT 0,
		distance_signals INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'active'
	)`

const rideSessionsEmailIndex = `CREATE INDEX IF NOT EXISTS ride_sessions_email_idx ON ride_sessions (email, started_at DESC)`

// Migrate creates the ride history tables when they are missing.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range []string{rideSessionsDDL, rideSessionsEmailIndex} {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
