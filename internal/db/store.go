package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		createdAt INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_createdAt ON transcripts(createdAt);
`

// Store provides transcript persistence. It is accessed from the control
// thread only, so no locking beyond SQLite's own is required.
type Store struct {
	db *sql.DB

	// lastCreatedAt keeps createdAt strictly increasing per insertion order
	// even when the wall clock ties between inserts.
	lastCreatedAt int64
}

// Open opens (creating if needed) the database at path with WAL.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: sqlDB}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a transcript with a fresh id and a strictly increasing
// creation timestamp.
func (s *Store) Save(text string) error {
	now := time.Now().UnixNano()
	if now <= s.lastCreatedAt {
		now = s.lastCreatedAt + 1
	}
	s.lastCreatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO transcripts (id, text, createdAt)
		VALUES (?, ?, ?)
	`, uuid.NewString(), text, now)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Latest returns up to limit transcripts, newest first. An empty store
// yields an empty result.
func (s *Store) Latest(limit int) ([]Transcript, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT id, text, createdAt
		FROM transcripts
		ORDER BY createdAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		t.CreatedAt = time.Unix(0, createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// FetchLatest returns the texts of the most recent transcripts, newest first.
func (s *Store) FetchLatest(limit int) ([]string, error) {
	records, err := s.Latest(limit)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	return texts, nil
}
