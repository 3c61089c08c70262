package session

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    version  INTEGER NOT NULL,
    body     TEXT    NOT NULL,
    saved_at INTEGER NOT NULL
)`

// SQLiteStore keeps the encoded document in a single row of a SQLite
// database, for hosts that already keep their state there.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Load() (*Document, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM session WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return Decode([]byte(body))
}

func (s *SQLiteStore) Save(d *Document) error {
	data, err := Encode(d)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
        INSERT INTO session (id, version, body, saved_at) VALUES (1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET version = excluded.version, body = excluded.body, saved_at = excluded.saved_at
    `, d.Version, string(data), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
