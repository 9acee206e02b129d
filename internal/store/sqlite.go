package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

// sqliteDSNParams enables foreign keys and waits on locked databases. Each
// entry lists the go-sqlite3 aliases for the same setting.
var sqliteDSNParams = []struct {
	keys  []string
	value string
}{
	{[]string{"_foreign_keys", "_fk"}, "on"},
	{[]string{"_busy_timeout", "_timeout"}, "5000"},
	{[]string{"_journal_mode", "_journal"}, "WAL"},
}

// withSQLiteParams appends every default parameter the DSN does not already set.
func withSQLiteParams(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	var extra []string
	for _, p := range sqliteDSNParams {
		set := false
		for _, k := range p.keys {
			if query.Has(k) {
				set = true
				break
			}
		}
		if !set {
			extra = append(extra, p.keys[0]+"="+p.value)
		}
	}
	if len(extra) == 0 {
		return dsn
	}
	if rawQuery != "" {
		extra = append([]string{rawQuery}, extra...)
	}
	return base + "?" + strings.Join(extra, "&")
}

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the single-process SQLite backend. Per-user locking is done
// in memory, so only one process may own the database file.
type SQLiteStore struct {
	sqlStore
	locker *userLocker
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn = withSQLiteParams(dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", path)

	return &SQLiteStore{
		sqlStore: sqlStore{db: db, name: "SQLiteStore"},
		locker:   newUserLocker(),
	}, nil
}

func (s *SQLiteStore) LockUser(ctx context.Context, userID string) (func(), error) {
	return s.locker.Lock(ctx, userID)
}
