// Package storage implements history.Store on SQLite and Postgres.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/router"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements history.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ history.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dbPath. Use ":memory:" for
// a throwaway store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", dbPath).Msg("could not restrict database file permissions")
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		analysis_type TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_owner_created ON history(owner_id, created_at DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, ownerID string, result router.UnifiedResult) (string, error) {
	entry, data, err := newEntry(ownerID, result)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (id, owner_id, analysis_type, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.OwnerID, string(result.AnalysisType), string(data), entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert history entry: %w", err)
	}
	return entry.ID, nil
}

func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]history.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, result, created_at FROM history WHERE owner_id = ? ORDER BY created_at DESC, seq DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	summaries := []history.Summary{}
	for rows.Next() {
		e := history.Entry{OwnerID: ownerID}
		var data string
		if err := rows.Scan(&e.ID, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Result); err != nil {
			return nil, fmt.Errorf("failed to decode history entry %s: %w", e.ID, err)
		}
		summaries = append(summaries, history.Summarize(e))
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, ownerID, id string) (*history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := history.Entry{ID: id, OwnerID: ownerID}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT result, created_at FROM history WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	).Scan(&data, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &e.Result); err != nil {
		return nil, fmt.Errorf("failed to decode history entry %s: %w", id, err)
	}
	return &e, nil
}

// newEntry validates result and builds the entry and its JSON encoding.
func newEntry(ownerID string, result router.UnifiedResult) (history.Entry, []byte, error) {
	if ownerID == "" {
		return history.Entry{}, nil, errors.New("owner id is required")
	}
	if err := result.Validate(); err != nil {
		return history.Entry{}, nil, fmt.Errorf("invalid result: %w", err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return history.Entry{}, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return history.Entry{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
		Result:    result,
	}, data, nil
}
