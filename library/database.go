package library

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SessionDB is a SessionStore persisted in a SQLite file, so a login survives
// across separate invocations of the CLI.
type SessionDB struct {
	db     *sql.DB
	sealer *Sealer
	logger *slog.Logger

	getStmt *sql.Stmt
	setStmt *sql.Stmt
}

// SessionDBOption configures a SessionDB.
type SessionDBOption func(*SessionDB)

// WithSealer encrypts stored values with s.
func WithSealer(s *Sealer) SessionDBOption {
	return func(d *SessionDB) { d.sealer = s }
}

// WithStoreLogger sets the logger used to report unreadable values.
func WithStoreLogger(l *slog.Logger) SessionDBOption {
	return func(d *SessionDB) { d.logger = l }
}

// OpenSessionDB opens (or creates) the session database at dbPath, applies
// schema migrations, and prepares common statements.
func OpenSessionDB(dbPath string, opts ...SessionDBOption) (*SessionDB, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SessionDB{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *SessionDB) Close() error {
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.setStmt != nil {
		s.setStmt.Close()
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL lets a second invocation read while another one writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (s *SessionDB) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(`SELECT value FROM session WHERE key=?`); err != nil {
		return err
	}
	if s.setStmt, err = s.db.Prepare(`INSERT INTO session(key,value,updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// SessionStore
// ---------------------------------------------------------------------------

func (s *SessionDB) get(key string) string {
	var value string
	err := s.getStmt.QueryRow(key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return ""
	}
	if err != nil {
		s.logger.Warn("session read failed", "key", key, "error", err)
		return ""
	}
	if s.sealer != nil {
		plain, err := s.sealer.Open(value)
		if err != nil {
			s.logger.Warn("session value could not be unsealed", "key", key, "error", err)
			return ""
		}
		return plain
	}
	return value
}

func (s *SessionDB) set(key, value string) error {
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
		value = sealed
	}
	if _, err := s.setStmt.Exec(key, value); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *SessionDB) Token() string       { return s.get(keyToken) }
func (s *SessionDB) Role() Role          { return Role(s.get(keyRole)) }
func (s *SessionDB) DisplayName() string { return s.get(keyDisplayName) }

func (s *SessionDB) SetToken(token string) error      { return s.set(keyToken, token) }
func (s *SessionDB) SetRole(role Role) error          { return s.set(keyRole, string(role)) }
func (s *SessionDB) SetDisplayName(name string) error { return s.set(keyDisplayName, name) }

// Clear removes token, role and display name in one transaction.
func (s *SessionDB) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM session WHERE key IN (?,?,?)`, keyToken, keyRole, keyDisplayName); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return tx.Commit()
}
