package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"honeypot/internal/domain"
	"honeypot/internal/metrics"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions to disk so a restart does not lose sessions
// that are still concluding with an undelivered report.
type SQLiteStore struct {
	db       *sql.DB
	keyLocks *KeyLocks
	logger   *slog.Logger
}

func NewSQLiteStore(dbPath string, keyLocks *KeyLocks, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if keyLocks == nil {
		keyLocks = NewKeyLocks()
	}
	s := &SQLiteStore{db: db, keyLocks: keyLocks, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	// Seed the active-sessions gauge with what survived the last run.
	var active int64
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE status != ?`, string(domain.StatusClosed),
	).Scan(&active); err == nil {
		metrics.ActiveSessions.Set(active)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		body        TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM sessions WHERE id = ?`, id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(body), &sess); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) Put(ctx context.Context, sess *domain.Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, body=excluded.body, updated_at=excluded.updated_at`,
		sess.ID, string(sess.Status), string(body), time.Now(),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err == nil {
		s.keyLocks.Forget(id)
	}
	return err
}

func (s *SQLiteStore) Concluding(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE status = ?`, string(domain.StatusConcluding),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Evict removes closed sessions and sessions idle past ttl. Concluding
// sessions are kept until their report is delivered or they go idle for a
// full TTL.
func (s *SQLiteStore) Evict(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status FROM sessions WHERE status = ? OR updated_at < ?`,
		string(domain.StatusClosed), cutoff,
	)
	if err != nil {
		return 0, err
	}
	var ids []string
	var active int64
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		if status != string(domain.StatusClosed) {
			active++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = ? OR updated_at < ?`,
		string(domain.StatusClosed), cutoff,
	)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.keyLocks.Forget(id)
	}
	// Closed sessions already left the gauge when their report was delivered.
	metrics.ActiveSessions.Add(-active)
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
