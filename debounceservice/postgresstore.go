package debounceservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps the table in a camera_triggers table so several relay
// instances can share debounce state.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore connects to dsn and creates the table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping debounce database: %w", err)
	}

	ps := &PostgresStore{DB: db}
	if err := ps.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return ps, nil
}

// Init creates the required table if it doesn't exist.
func (ps *PostgresStore) Init(ctx context.Context) error {
	_, err := ps.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS camera_triggers (
		camera_id TEXT PRIMARY KEY,
		last_trigger DOUBLE PRECISION NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("create camera_triggers: %w", err)
	}
	return nil
}

func (ps *PostgresStore) ShouldSkip(ctx context.Context, cameraID string, now time.Time, interval time.Duration) Check {
	var last float64
	err := ps.DB.QueryRowContext(ctx,
		`SELECT last_trigger FROM camera_triggers WHERE camera_id = $1`, cameraID,
	).Scan(&last)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn().Msgf("Could not read debounce time for %s, treating as unseen: %v", cameraID, err)
		}
		return Check{}
	}
	return check(last, true, now, interval)
}

func (ps *PostgresStore) RecordTrigger(ctx context.Context, cameraID string, now time.Time) error {
	_, err := ps.DB.ExecContext(ctx,
		`INSERT INTO camera_triggers (camera_id, last_trigger) VALUES ($1, $2)
			ON CONFLICT (camera_id) DO UPDATE SET last_trigger = EXCLUDED.last_trigger`,
		cameraID,
		unixSeconds(now),
	)
	return err
}

// Close closes the database connection.
func (ps *PostgresStore) Close() error {
	return ps.DB.Close()
}
