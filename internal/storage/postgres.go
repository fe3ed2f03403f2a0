package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps a PostgreSQL connection pool for the invocation audit log and the
// threat journal.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogInvocation inserts an invocation record into the audit log.
func (db *DB) LogInvocation(ctx context.Context, inv *Invocation) error {
	query := `
		INSERT INTO invocations (id, command_hash, redacted, level, category, blocked,
			exit_code, duration_ms, timed_out, truncated, status, client_id,
			created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := db.pool.Exec(ctx, query,
		inv.ID, inv.CommandHash, inv.Redacted, inv.Level, inv.Category, inv.Blocked,
		inv.ExitCode, inv.DurationMS, inv.TimedOut, inv.Truncated, inv.Status,
		inv.ClientID, inv.CreatedAt, inv.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}
	return nil
}

// LogThreat appends a redacted threat event to the journal.
func (db *DB) LogThreat(ctx context.Context, rec *ThreatRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SeenAt.IsZero() {
		rec.SeenAt = time.Now()
	}

	query := `
		INSERT INTO threat_events (id, command_hash, redacted, session_id, risk, count, seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := db.pool.Exec(ctx, query,
		rec.ID, rec.CommandHash, rec.Redacted, rec.SessionID,
		rec.Risk, rec.Count, rec.SeenAt,
	)
	if err != nil {
		return fmt.Errorf("inserting threat event: %w", err)
	}
	return nil
}

// GetInvocation retrieves a single invocation by ID.
func (db *DB) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	query := `
		SELECT id, command_hash, redacted, level, category, blocked, exit_code,
			duration_ms, timed_out, truncated, status, client_id, created_at, completed_at
		FROM invocations WHERE id = $1`

	var inv Invocation
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.CommandHash, &inv.Redacted, &inv.Level, &inv.Category,
		&inv.Blocked, &inv.ExitCode, &inv.DurationMS, &inv.TimedOut,
		&inv.Truncated, &inv.Status, &inv.ClientID, &inv.CreatedAt, &inv.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying invocation %s: %w", id, err)
	}
	return &inv, nil
}

// ListInvocations queries invocations with optional filters.
func (db *DB) ListInvocations(ctx context.Context, filter InvocationFilter) ([]Invocation, error) {
	query := `
		SELECT id, command_hash, level, category, blocked, exit_code,
			duration_ms, timed_out, truncated, status, client_id, created_at, completed_at
		FROM invocations
		WHERE ($1 = '' OR level = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query,
		filter.Level, filter.Status, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer rows.Close()

	var results []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(
			&inv.ID, &inv.CommandHash, &inv.Level, &inv.Category, &inv.Blocked,
			&inv.ExitCode, &inv.DurationMS, &inv.TimedOut, &inv.Truncated,
			&inv.Status, &inv.ClientID, &inv.CreatedAt, &inv.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning invocation row: %w", err)
		}
		results = append(results, inv)
	}

	return results, rows.Err()
}
