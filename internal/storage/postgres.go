package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/router"
)

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements history.Store on a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

var _ history.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to connString, checks the connection and
// creates the history table when missing.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgresStoreFromPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The caller runs Migrate.
func NewPostgresStoreFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS history (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	owner_id      TEXT NOT NULL,
	analysis_type TEXT NOT NULL,
	result        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_history_owner_created ON history(owner_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return fmt.Errorf("failed to migrate history table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, ownerID string, result router.UnifiedResult) (string, error) {
	entry, data, err := newEntry(ownerID, result)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO history (id, owner_id, analysis_type, result, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.OwnerID, string(result.AnalysisType), data, entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert history entry: %w", err)
	}
	return entry.ID, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]history.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, result, created_at FROM history WHERE owner_id = $1 ORDER BY created_at DESC, seq DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	summaries := []history.Summary{}
	for rows.Next() {
		e := history.Entry{OwnerID: ownerID}
		var data []byte
		if err := rows.Scan(&e.ID, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if err := json.Unmarshal(data, &e.Result); err != nil {
			return nil, fmt.Errorf("failed to decode history entry %s: %w", e.ID, err)
		}
		summaries = append(summaries, history.Summarize(e))
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*history.Entry, error) {
	e := history.Entry{ID: id, OwnerID: ownerID}
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result, created_at FROM history WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&data, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	if err := json.Unmarshal(data, &e.Result); err != nil {
		return nil, fmt.Errorf("failed to decode history entry %s: %w", id, err)
	}
	return &e, nil
}
