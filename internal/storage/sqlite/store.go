// Package sqlite provides SQLite-backed gateway persistence.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/pairline/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/pairline/internal/storage"
	"github.com/louisbranch/pairline/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed persistence for credentials and telemetry.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// DB returns the underlying sql.DB instance.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutCredentials inserts or replaces a session's credential blob.
func (s *Store) PutCredentials(ctx context.Context, rec storage.CredentialRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO credentials (session_id, credentials, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    credentials = excluded.credentials,
    updated_at = excluded.updated_at
`, rec.SessionID, rec.Credentials, toMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("put credentials: %w", err)
	}
	return nil
}

// GetCredentials loads a session's credential blob. Missing records return
// storage.ErrNotFound.
func (s *Store) GetCredentials(ctx context.Context, sessionID string) (storage.CredentialRecord, error) {
	var (
		rec       storage.CredentialRecord
		updatedAt int64
	)
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT session_id, credentials, updated_at FROM credentials WHERE session_id = ?", sessionID)
	if err := row.Scan(&rec.SessionID, &rec.Credentials, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return storage.CredentialRecord{}, storage.ErrNotFound
		}
		return storage.CredentialRecord{}, fmt.Errorf("get credentials: %w", err)
	}
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// DeleteCredentials removes a session's credential blob. Idempotent.
func (s *Store) DeleteCredentials(ctx context.Context, sessionID string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM credentials WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// AppendTelemetry records an operational telemetry event.
func (s *Store) AppendTelemetry(ctx context.Context, evt storage.TelemetryEvent) error {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (ts, severity, session_id, event, message)
VALUES (?, ?, ?, ?, ?)
`, toMillis(ts), evt.Severity, evt.SessionID, evt.Event, evt.Message)
	if err != nil {
		return fmt.Errorf("append telemetry: %w", err)
	}
	return nil
}
