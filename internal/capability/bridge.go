package capability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Bridge is the local capability store standing in for the platform's
// reminders, calendar, and contacts databases, plus the grants table that
// models the OS-level permission state. Each adapter shares one bridge.
type Bridge struct {
	db     *sql.DB
	policy Policy
}

// Policy decides the outcome of a permission request for a capability
// whose grant is undetermined. In production this is driven by operator
// configuration; tests inject their own.
type Policy interface {
	Decide(capability string) AuthStatus
}

// AutoGrantPolicy grants the listed capabilities and denies the rest.
type AutoGrantPolicy struct {
	granted map[string]bool
}

// NewAutoGrantPolicy creates a policy granting the given capabilities.
func NewAutoGrantPolicy(capabilities []string) *AutoGrantPolicy {
	granted := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		granted[c] = true
	}
	return &AutoGrantPolicy{granted: granted}
}

// Decide returns granted for listed capabilities, denied otherwise.
func (p *AutoGrantPolicy) Decide(capability string) AuthStatus {
	if p.granted[capability] {
		return AuthGranted
	}
	return AuthDenied
}

// OpenBridge opens (creating if needed) the bridge database at
// baseDir/bridge.db.
func OpenBridge(baseDir string, policy Policy) (*Bridge, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create bridge directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "bridge.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge database: %w", err)
	}

	if err := migrateBridge(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Bridge{db: db, policy: policy}, nil
}

// Close closes the underlying database.
func (b *Bridge) Close() error {
	return b.db.Close()
}

func migrateBridge(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS grants (
	  capability TEXT PRIMARY KEY,
	  status     TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reminders (
	  id         TEXT PRIMARY KEY,
	  title      TEXT NOT NULL,
	  notes      TEXT,
	  due_at     INTEGER,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
	  id         TEXT PRIMARY KEY,
	  title      TEXT NOT NULL,
	  notes      TEXT,
	  start_at   INTEGER NOT NULL,
	  end_at     INTEGER,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contacts (
	  id         TEXT PRIMARY KEY,
	  name       TEXT NOT NULL,
	  phone      TEXT,
	  email      TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS map_lookups (
	  id         TEXT PRIMARY KEY,
	  query      TEXT NOT NULL,
	  name       TEXT NOT NULL,
	  lat        REAL NOT NULL,
	  lon        REAL NOT NULL,
	  created_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate bridge schema: %w", err)
	}
	return nil
}

// grantStatus reads the persisted grant state for a capability.
func (b *Bridge) grantStatus(ctx context.Context, capability string) (AuthStatus, error) {
	var status string
	err := b.db.QueryRowContext(ctx,
		`SELECT status FROM grants WHERE capability = ?`, capability).Scan(&status)
	if err == sql.ErrNoRows {
		return AuthNotDetermined, nil
	}
	if err != nil {
		return AuthNotDetermined, NewError(ErrKindSystemError, fmt.Errorf("failed to read grant: %w", err))
	}
	return AuthStatus(status), nil
}

// requestGrant resolves an undetermined grant through the policy and
// persists the outcome. An already-resolved grant is returned as is; the
// bridge never re-prompts.
func (b *Bridge) requestGrant(ctx context.Context, capability string) (AuthStatus, error) {
	current, err := b.grantStatus(ctx, capability)
	if err != nil {
		return AuthNotDetermined, err
	}
	if current != AuthNotDetermined {
		return current, nil
	}

	status := b.policy.Decide(capability)
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO grants (capability, status) VALUES (?, ?)
		 ON CONFLICT(capability) DO UPDATE SET status = excluded.status`,
		capability, string(status))
	if err != nil {
		return AuthNotDetermined, NewError(ErrKindSystemError, fmt.Errorf("failed to persist grant: %w", err))
	}
	return status, nil
}

// SetGrant overrides the persisted grant state for a capability. Exposed
// for operator tooling and tests (out-of-band grant changes).
func (b *Bridge) SetGrant(ctx context.Context, capability string, status AuthStatus) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO grants (capability, status) VALUES (?, ?)
		 ON CONFLICT(capability) DO UPDATE SET status = excluded.status`,
		capability, string(status))
	if err != nil {
		return NewError(ErrKindSystemError, fmt.Errorf("failed to set grant: %w", err))
	}
	return nil
}
