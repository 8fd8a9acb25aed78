// Package store persists entries in SQLite. Metadata is stored as a
// JSON column so the action list travels with the entry row.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/snipd/internal/entry"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("entry not found")

// Store is the SQLite-backed entry repository.
type Store struct {
	db *sql.DB
}

// Open initializes the database at baseDir/snipd.db and returns the
// repository. The baseDir parameter lets tests use t.TempDir().
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "snipd.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS entries (
		  id         TEXT PRIMARY KEY,
		  kind       TEXT NOT NULL,
		  content    TEXT NOT NULL,
		  status     TEXT NOT NULL,
		  metadata   TEXT NOT NULL DEFAULT '{}',
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_status_created
		ON entries(status, created_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}
	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Insert stores a new entry.
func (s *Store) Insert(ctx context.Context, e *entry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	md := e.Metadata
	if md == nil {
		md = &entry.Metadata{}
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, kind, content, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Content, string(e.Status), string(raw), e.CreatedAt.Unix(), now)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// GetEntry loads one entry by id.
func (s *Store) GetEntry(ctx context.Context, id string) (*entry.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, content, status, metadata, created_at FROM entries WHERE id = ?`, id)
	return scanEntry(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*entry.Entry, error) {
	var (
		e       entry.Entry
		kind    string
		status  string
		raw     string
		created int64
	)
	if err := row.Scan(&e.ID, &kind, &e.Content, &status, &raw, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = entry.Kind(kind)
	e.Status = entry.Status(status)
	e.CreatedAt = time.Unix(created, 0).UTC()
	md := &entry.Metadata{}
	if err := json.Unmarshal([]byte(raw), md); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for %s: %w", e.ID, err)
	}
	e.Metadata = md
	return &e, nil
}

// List returns entries newest first, up to limit (0 means no limit).
func (s *Store) List(ctx context.Context, limit int) ([]*entry.Entry, error) {
	q := `SELECT id, kind, content, status, metadata, created_at
	      FROM entries ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntries(ctx, q, args...)
}

// ListUnprocessed returns entries awaiting processing, oldest first so
// the pipeline works in capture order.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]*entry.Entry, error) {
	q := `SELECT id, kind, content, status, metadata, created_at
	      FROM entries WHERE status = ? ORDER BY created_at ASC, id ASC`
	args := []any{string(entry.StatusUnprocessed)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntries(ctx, q, args...)
}

func (s *Store) queryEntries(ctx context.Context, q string, args ...any) ([]*entry.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	var out []*entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEntryStatus sets the entry's status.
func (s *Store) UpdateEntryStatus(ctx context.Context, id string, status entry.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMetadata replaces the entry's metadata document.
func (s *Store) SaveMetadata(ctx context.Context, id string, md *entry.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
