// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/emiwiz/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

const transactionKey = "transaction_id"

// Store wraps SQLite access for wizard data that outlives a session.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			level TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY,
			endpoint TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			status INTEGER NOT NULL,
			error TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// TransactionID returns the stored transaction id, or the default when none is stored.
func (s *Store) TransactionID(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, transactionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultTransactionID, nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return model.DefaultTransactionID, nil
	}
	return value, nil
}

// SetTransactionID stores id as the current transaction id.
func (s *Store) SetTransactionID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		transactionKey, id, s.now().UTC().Format(time.RFC3339Nano))
	return err
}

// ResetTransactionID forgets the stored id so the default is used again.
func (s *Store) ResetTransactionID(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, transactionKey)
	return err
}

// RecordNotification appends a notification to the history table.
func (s *Store) RecordNotification(n model.Notification) error {
	at := n.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO notifications (id, level, text, created_at) VALUES (?, ?, ?, ?)`,
		n.ID, string(n.Level), n.Text, at.UTC().Format(time.RFC3339Nano))
	return err
}

// ListNotifications returns up to limit notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, level, text, created_at FROM notifications
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.Notification
	for rows.Next() {
		var n model.Notification
		var level, createdAt string
		if err := rows.Scan(&n.ID, &level, &n.Text, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		n.Level = model.Level(level)
		n.At = parsed
		n.Read = true
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordUpload stores one backend call in the audit log.
func (s *Store) RecordUpload(ctx context.Context, rec model.UploadRecord) (int64, error) {
	at := rec.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (endpoint, transaction_id, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Endpoint, rec.TransactionID, rec.Status, rec.Error, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListUploads returns up to limit audit records, newest first.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]model.UploadRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, transaction_id, status, error, created_at FROM uploads
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.UploadRecord
	for rows.Next() {
		var rec model.UploadRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Endpoint, &rec.TransactionID, &rec.Status, &rec.Error, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = parsed
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
