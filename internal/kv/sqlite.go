package kv

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a durable string-keyed store of booleans, strings and string sets
// backed by SQLite. Reads never fail the caller: a missing key or a read error
// resolves to the supplied default.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger read and import diagnostics go to. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (or creates) the preferences database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string, opts ...Option) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "prefs.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: ":memory:" databases are per-connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Reads ---

// lookup returns the raw stored value for key, or ErrNotFound.
func (s *Store) lookup(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// raw returns the stored value and whether the caller should use it. Read
// errors are logged and reported as absent.
func (s *Store) raw(key string) (string, bool) {
	v, err := s.lookup(key)
	if err == ErrNotFound {
		return "", false
	}
	if err != nil {
		s.log.Warn("kv read failed, using default", "key", key, "error", err)
		return "", false
	}
	return v, true
}

func (s *Store) GetBool(key string, def bool) bool {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		s.log.Warn("kv value is not a bool, using default", "key", key, "value", raw)
		return def
	}
	return b
}

func (s *Store) GetString(key, def string) string {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	return raw
}

func (s *Store) GetStringSet(key string, def []string) []string {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	set, err := decodeStringSet(raw)
	if err != nil {
		s.log.Warn("kv value is not a string set, using default", "key", key, "error", err)
		return def
	}
	return set
}

// --- Writes ---

func (s *Store) put(key, typ, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, type, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET type = excluded.type, value = excluded.value, updated_at = excluded.updated_at`,
		key, typ, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) PutBool(key string, v bool) error {
	return s.put(key, TypeBool, encodeBool(v))
}

func (s *Store) PutString(key, v string) error {
	return s.put(key, TypeString, v)
}

func (s *Store) PutStringSet(key string, v []string) error {
	raw, err := encodeStringSet(v)
	if err != nil {
		return err
	}
	return s.put(key, TypeStringSet, raw)
}

// ImportEntries copies entries into the store in a single transaction and
// returns how many were written. Keys that already exist keep their current
// value; values of unsupported types are skipped.
func (s *Store) ImportEntries(entries map[string]any) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	imported := 0
	for _, key := range keys {
		typ, raw, ok := encodeImported(entries[key])
		if !ok {
			s.log.Warn("skipping legacy entry of unsupported type", "key", key, "type", fmt.Sprintf("%T", entries[key]))
			continue
		}
		res, err := tx.Exec(`
			INSERT INTO kv (key, type, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING`,
			key, typ, raw, now,
		)
		if err != nil {
			return 0, fmt.Errorf("importing %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking imported rows for %s: %w", key, err)
		}
		imported += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return imported, nil
}
