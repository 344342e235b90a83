// Package statestore provides a namespaced key-value store backed by
// SQLite, used for small pieces of state that need to survive restarts
// but don't warrant their own file format, such as the email channel's
// IMAP UID high-water mark.
package statestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a namespaced key-value table over a single SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the SQLite database at path using
// the mattn/go-sqlite3 cgo driver, and runs its migration.
func NewStore(path string) (*Store, error) {
	return newStore("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
}

// NewStoreWithDriver opens path using the named database/sql driver.
// Tests use this with modernc.org/sqlite's pure-Go "sqlite" driver to
// avoid a cgo dependency.
func NewStoreWithDriver(driverName, path string) (*Store, error) {
	return newStore(driverName, path)
}

func newStore(driverName, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open statestore %s: %w", dsn, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS state (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate statestore: %w", err)
	}
	return nil
}

// Get returns the value for (namespace, key), or "" if not present.
func (s *Store) Get(namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM state WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Set upserts a value for (namespace, key).
func (s *Store) Set(namespace, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO state (namespace, key, value, updated_at)
		VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, namespace, key, value)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a single key.
func (s *Store) Delete(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM state WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List returns every key/value pair in a namespace.
func (s *Store) List(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM state WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
