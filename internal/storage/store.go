package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/annolab/webmark/internal/model"
)

// Storage keys for the credential rows. The schema is a generic
// key/value table because the extension storage it models is one.
const (
	keyUsername = "username"
	keyPassword = "password"
)

// Store provides SQLite-backed persistent storage.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// path is the SQLite database file path.
	path string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Recommended: the
	// coordinator journals a flush while a status query may be
	// reading.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dir. With CreateIfNotExists unset,
// a missing database file is an error rather than an empty store.
func Open(dir string, opts Options) (*Store, error) {
	path := filepath.Join(dir, "webmark.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("store not found at %s (use CreateIfNotExists to create)", path)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check store path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	dsn := path + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = path + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite supports one writer; a larger pool only produces
	// SQLITE_BUSY under write contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Generic key/value rows for stored credentials.
	CREATE TABLE IF NOT EXISTS credentials (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- One row per flushed page view the coordinator accepted.
	CREATE TABLE IF NOT EXISTS telemetry_journal (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		url          TEXT NOT NULL,
		referrer     TEXT,
		start_ts     INTEGER NOT NULL,
		end_ts       INTEGER NOT NULL,
		dwell_ms     INTEGER NOT NULL CHECK (dwell_ms >= 0),
		recorded_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		payload_json TEXT NOT NULL CHECK (json_valid(payload_json))
	);

	CREATE INDEX IF NOT EXISTS idx_journal_url ON telemetry_journal(url);
	CREATE INDEX IF NOT EXISTS idx_journal_recorded ON telemetry_journal(recorded_at);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCredentials writes the login to storage, replacing any previous
// values. Credentials are validated before the write so a half-filled
// login form can never produce a partially stored account.
func (s *Store) SaveCredentials(ctx context.Context, creds model.Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	upsert := `INSERT INTO credentials(key, value) VALUES(?, ?)
	           ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	for key, value := range map[string]string{
		keyUsername: creds.Username,
		keyPassword: creds.Password,
	} {
		if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}

// LoadCredentials reads the stored login. Absent credentials are not an
// error: the zero value is returned and callers gate on Empty().
func (s *Store) LoadCredentials(ctx context.Context) (model.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds model.Credentials
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.Credentials{}, fmt.Errorf("failed to scan credential row: %w", err)
		}
		switch key {
		case keyUsername:
			creds.Username = value
		case keyPassword:
			creds.Password = value
		}
	}
	if err := rows.Err(); err != nil {
		return model.Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	return creds, nil
}

// ClearCredentials removes the stored login entirely. Called on logout.
func (s *Store) ClearCredentials(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// JournalEntry is one recorded telemetry submission.
type JournalEntry struct {
	ID         int64
	URL        string
	Referrer   string
	Start      time.Time
	End        time.Time
	Dwell      time.Duration
	RecordedAt time.Time
}

// JournalPageView records an accepted page-view flush. The view must be
// sealed; journaling an open view would persist a dwell time that is
// still moving.
func (s *Store) JournalPageView(ctx context.Context, view model.PageView) (int64, error) {
	if !view.Sealed() {
		return 0, errors.New("refusing to journal an unsealed page view")
	}

	payload, err := json.Marshal(view)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal page view: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry_journal(url, referrer, start_ts, end_ts, dwell_ms, payload_json)
		 VALUES(?, ?, ?, ?, ?, json(?))`,
		view.URL, view.Referrer,
		view.Start.UnixMilli(), view.End.UnixMilli(),
		view.Dwell.Milliseconds(), string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to journal page view: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read journal id: %w", err)
	}
	return id, nil
}

// RecentJournal returns the most recent journal entries, newest first,
// up to limit.
func (s *Store) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, COALESCE(referrer, ''), start_ts, end_ts, dwell_ms, recorded_at
		 FROM telemetry_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var startMilli, endMilli, dwellMilli int64
		var recorded string
		if err := rows.Scan(&e.ID, &e.URL, &e.Referrer, &startMilli, &endMilli, &dwellMilli, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Start = time.UnixMilli(startMilli).UTC()
		e.End = time.UnixMilli(endMilli).UTC()
		e.Dwell = time.Duration(dwellMilli) * time.Millisecond
		e.RecordedAt = parseTimestamp(recorded)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// JournalCount returns the number of journaled submissions.
func (s *Store) JournalCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_journal`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal: %w", err)
	}
	return count, nil
}

// parseTimestamp parses SQLite's CURRENT_TIMESTAMP format. A zero time
// is returned for unparseable values rather than failing the read.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
