// Package store persists processed-message IDs and Flow completion
// records in sqlite, so dedup survives restarts and completed flows leave
// an audit trail.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the service database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS processed (
		message_id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS flow_completions (
		flow_token TEXT NOT NULL,
		flow_id TEXT NOT NULL,
		action TEXT NOT NULL,
		completed_at TIMESTAMP NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkProcessed records a message ID and reports whether it had already
// been processed. First caller wins.
func (s *Store) MarkProcessed(messageID, sender string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed (message_id, sender, processed_at) VALUES (?, ?, ?)`,
		messageID, sender, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return n == 0, nil
}

// RecordCompletion appends a Flow completion audit row.
func (s *Store) RecordCompletion(flowToken, flowID, action string) error {
	_, err := s.db.Exec(
		`INSERT INTO flow_completions (flow_token, flow_id, action, completed_at) VALUES (?, ?, ?, ?)`,
		flowToken, flowID, action, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// CompletionCount returns how many completions are recorded for a flow.
func (s *Store) CompletionCount(flowID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM flow_completions WHERE flow_id = ?`, flowID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return n, nil
}

// PruneProcessed deletes processed-message rows older than keep. Call
// periodically to bound database growth.
func (s *Store) PruneProcessed(keep time.Duration) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM processed WHERE processed_at < ?`,
		time.Now().UTC().Add(-keep),
	)
	if err != nil {
		return 0, fmt.Errorf("prune processed: %w", err)
	}
	return res.RowsAffected()
}
