package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed persistence layer for tests, sessions,
// alerts, submissions, and recordings.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tests (
			code TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			test_code TEXT NOT NULL,
			student_name TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (test_code, student_name)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			test_code TEXT NOT NULL,
			student_name TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_session
			ON alerts (test_code, student_name)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			test_code TEXT NOT NULL,
			student_name TEXT NOT NULL,
			payload TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			PRIMARY KEY (test_code, student_name)
		)`,
		`CREATE TABLE IF NOT EXISTS recordings (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			test_code TEXT NOT NULL DEFAULT '',
			student_name TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
