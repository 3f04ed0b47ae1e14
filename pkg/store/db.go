// Package store is the SQLite storage layer for nodes, channels, messages,
// and direct messages. The collector opens one read-write handle (WAL mode,
// single writer); the web layer opens independent read-only handles.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Open opens (or creates) the database at path for the single writer
// process, applying the schema if the stored version differs.
func Open(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(3000)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite WAL allows many readers but exactly one writer.
	db.SetMaxOpenConns(1)

	if err := initializeOrUpgrade(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenReadOnly opens a connection-private read-only handle for query
// contexts. Readers never block the writer and vice versa.
func OpenReadOnly(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(2500)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open read-only %s: %w", path, err)
	}
	return db, nil
}

// schemaVersion extracts the version string from the schema file header
// ("-- schema_version: x.y.z").
func schemaVersion() string {
	line, _, _ := strings.Cut(schemaSQL, "\n")
	if after, ok := strings.CutPrefix(strings.TrimSpace(line), "-- schema_version:"); ok {
		return strings.TrimSpace(after)
	}
	return "0.0.0"
}

func storedSchemaVersion(db *sqlx.DB) string {
	var v string
	err := db.Get(&v, `SELECT value FROM meta WHERE key = 'schema_version';`)
	if err != nil {
		// Missing table or row both mean a fresh/pre-versioned database.
		return "0.0.0"
	}
	return v
}

// initializeOrUpgrade rebuilds the database when the schema version has
// changed. The migration is destructive: every non-system table is dropped
// and recreated, trading data for simplicity.
func initializeOrUpgrade(db *sqlx.DB) error {
	want := schemaVersion()
	have := storedSchemaVersion(db)
	if want == have {
		return nil
	}

	slog.Info("initializing database schema", "from", have, "to", want)

	if have != "0.0.0" {
		var tables []string
		err := db.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table';`)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("store: list tables: %w", err)
		}
		for _, name := range tables {
			if strings.HasPrefix(name, "sqlite_") {
				continue
			}
			slog.Info("dropping table", "table", name)
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s;", name)); err != nil {
				return fmt.Errorf("store: drop table %s: %w", name, err)
			}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', $1);`, want); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}
