package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLStore keeps one row per key in a SQLite table. It is the alternative
// to the bbolt Store when a SQL file is preferred for inspection.
type SQLStore struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers; SQLite would otherwise
	// answer concurrent writes with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLStore returns a store backed by the given table, creating it if needed.
func NewSQLStore(db *sql.DB, table string) (*SQLStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("cache: invalid table name %q", table)
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	stored_at INTEGER NOT NULL,
	ttl INTEGER NOT NULL,
	value BLOB NOT NULL
)`, table)
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, table: table}, nil
}

func (s *SQLStore) Get(key string) (Entry, error) {
	var storedAt, ttl int64
	var value []byte
	row := s.db.QueryRow(fmt.Sprintf("SELECT stored_at, ttl, value FROM %s WHERE key = ?", s.table), key)
	if err := row.Scan(&storedAt, &ttl, &value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	if storedAt <= 0 || ttl < 0 {
		return Entry{}, ErrCorrupt
	}
	return Entry{Value: value, StoredAt: time.Unix(0, storedAt), TTL: time.Duration(ttl)}, nil
}

func (s *SQLStore) Put(key string, entry Entry) error {
	value := entry.Value
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO %s (key, stored_at, ttl, value) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET stored_at = excluded.stored_at, ttl = excluded.ttl, value = excluded.value`, s.table),
		key, entry.StoredAt.UnixNano(), int64(entry.TTL), value)
	return err
}

func (s *SQLStore) Delete(key string) (bool, error) {
	res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.table), key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) Clear() (int, error) {
	res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", s.table))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
