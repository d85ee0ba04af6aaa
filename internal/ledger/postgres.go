package ledger

import (
	"context"
	"fmt"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS completed_chunks (
	stage        text        NOT NULL,
	chunk        integer     NOT NULL,
	completed_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (stage, chunk)
)`

// PostgresLedger persists chunk completion in a single table, shared by
// every worker that processes the corpus.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL, ensures the schema and returns the
// ledger. Query tracing goes through the given logger at debug level.
func NewPostgres(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   zerologadapter.NewLogger(logger),
		LogLevel: tracelog.LogLevelDebug,
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

// Close releases the connection pool.
func (l *PostgresLedger) Close() {
	l.pool.Close()
}

func (l *PostgresLedger) IsDone(ctx context.Context, stage Stage, chunk int) (bool, error) {
	var done bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM completed_chunks WHERE stage = $1 AND chunk = $2)`,
		string(stage), chunk).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s/%d: %w", stage, chunk, err)
	}
	return done, nil
}

func (l *PostgresLedger) MarkDone(ctx context.Context, stage Stage, chunk int) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO completed_chunks (stage, chunk) VALUES ($1, $2)
		 ON CONFLICT (stage, chunk) DO NOTHING`,
		string(stage), chunk)
	if err != nil {
		return fmt.Errorf("ledger mark %s/%d: %w", stage, chunk, err)
	}
	return nil
}

func (l *PostgresLedger) Completed(ctx context.Context, stage Stage) ([]int, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT chunk FROM completed_chunks WHERE stage = $1 ORDER BY chunk`,
		string(stage))
	if err != nil {
		return nil, fmt.Errorf("ledger list %s: %w", stage, err)
	}
	defer rows.Close()

	var chunks []int
	for rows.Next() {
		var chunk int
		if err := rows.Scan(&chunk); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (l *PostgresLedger) Reset(ctx context.Context, stage Stage, chunk int) error {
	_, err := l.pool.Exec(ctx,
		`DELETE FROM completed_chunks WHERE stage = $1 AND chunk = $2`,
		string(stage), chunk)
	if err != nil {
		return fmt.Errorf("ledger reset %s/%d: %w", stage, chunk, err)
	}
	return nil
}
