package workflowstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

// openDB opens a libSQL-backed durable mirror and applies the pending schema
// migrations, grounded on the teacher's internal/store/libsql.go
// connection setup (single-writer PRAGMA profile suited to an
// embedded-SQLite-fork single process).
func openDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("workflowstore: open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var discard string
		_ = db.QueryRow(p).Scan(&discard)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("workflowstore: migrate: %w", err)
	}
	return db, nil
}
