package session

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"flowrelay/internal/domain"
)

// SQLiteStore persists session bindings across restarts.
type SQLiteStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl, logger: logger, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bindings (
			session_id TEXT PRIMARY KEY,
			target_key TEXT NOT NULL,
			touched_at TEXT NOT NULL
		)
	`)
	return err
}

var _ domain.SessionStore = (*SQLiteStore)(nil)

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(sessionID string) (string, bool) {
	row := s.db.QueryRow(
		"SELECT target_key, touched_at FROM bindings WHERE session_id = ?", sessionID,
	)
	var key, touchedStr string
	if err := row.Scan(&key, &touchedStr); err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("session lookup failed", "session_id", sessionID, "error", err)
		}
		return "", false
	}
	if s.ttl > 0 {
		touched, err := time.Parse(time.RFC3339Nano, touchedStr)
		if err != nil || s.now().Sub(touched) > s.ttl {
			if _, err := s.db.Exec("DELETE FROM bindings WHERE session_id = ?", sessionID); err != nil {
				s.logger.Warn("session eviction failed", "session_id", sessionID, "error", err)
			}
			return "", false
		}
	}
	return key, true
}

func (s *SQLiteStore) Set(sessionID, targetKey string) error {
	_, err := s.db.Exec(
		`INSERT INTO bindings (session_id, target_key, touched_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET target_key = excluded.target_key, touched_at = excluded.touched_at`,
		sessionID, targetKey, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store session binding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len() int {
	if s.ttl > 0 {
		cutoff := s.now().Add(-s.ttl).UTC().Format(time.RFC3339Nano)
		if _, err := s.db.Exec("DELETE FROM bindings WHERE touched_at < ?", cutoff); err != nil {
			s.logger.Warn("session sweep failed", "error", err)
		}
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM bindings").Scan(&n); err != nil {
		return 0
	}
	return n
}
