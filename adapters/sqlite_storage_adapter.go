package adapters

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteStorageAdapter persists values in a SQLite key/value table.
type SQLiteStorageAdapter struct {
	db *sql.DB

	get    *sql.Stmt
	set    *sql.Stmt
	remove *sql.Stmt
}

// Ensure SQLiteStorageAdapter implements StorageAdapter interface
var _ StorageAdapter = (*SQLiteStorageAdapter)(nil)

// OpenSQLiteStorageAdapter opens (or creates) the database at path and
// applies the schema. Use ":memory:" for a throwaway store.
func OpenSQLiteStorageAdapter(path string) (*SQLiteStorageAdapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStorageAdapter(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStorageAdapter wraps an already-opened database.
func NewSQLiteStorageAdapter(db *sql.DB) (*SQLiteStorageAdapter, error) {
	s := &SQLiteStorageAdapter{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorageAdapter) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (s *SQLiteStorageAdapter) prepareStatements() error {
	var err error

	s.get, err = s.db.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	s.set, err = s.db.Prepare(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.remove, err = s.db.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	return nil
}

// Get returns the value stored under key.
func (s *SQLiteStorageAdapter) Get(key string) (string, bool, error) {
	var value string
	err := s.get.QueryRow(key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *SQLiteStorageAdapter) Set(key, value string) error {
	_, err := s.set.Exec(key, value)
	if err != nil && isSQLiteFull(err) {
		return &StorageQuotaExceededError{Message: err.Error()}
	}
	return err
}

// Remove deletes key.
func (s *SQLiteStorageAdapter) Remove(key string) error {
	_, err := s.remove.Exec(key)
	return err
}

// Keys lists all stored keys.
func (s *SQLiteStorageAdapter) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStorageAdapter) Close() error {
	for _, stmt := range []*sql.Stmt{s.get, s.set, s.remove} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

func isSQLiteFull(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrFull
	}
	return false
}
