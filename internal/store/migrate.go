package store

import (
	"database/sql"
	"fmt"
)

func migrate(db *sql.DB) error {
	stmts := []string{
		// Documents and chat maps, one JSON value per key
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Provenance tracking for all generation calls
		`CREATE TABLE IF NOT EXISTS gateway_audit (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			model       TEXT NOT NULL,
			operation   TEXT NOT NULL,
			outcome     TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS gateway_audit_created ON gateway_audit(created_at)`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", truncate(s, 60), err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
