package db

import (
	"database/sql"
	"fmt"
)

// bootstrapFromLegacy detects a database created by the unversioned
// CREATE-TABLE-IF-NOT-EXISTS scheme (no schema_migrations, no
// goose_db_version — every table simply already exists) and seeds
// goose_db_version so the first goose run treats migration 1 as already
// applied instead of failing on "table already exists".
func bootstrapFromLegacy(conn *sql.DB) error {
	var gooseCount int
	if err := conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='goose_db_version'`,
	).Scan(&gooseCount); err != nil {
		return fmt.Errorf("check goose table: %w", err)
	}
	if gooseCount > 0 {
		return nil // already bootstrapped
	}

	var legacyCount int
	if err := conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='conversations'`,
	).Scan(&legacyCount); err != nil {
		return fmt.Errorf("check legacy conversations table: %w", err)
	}
	if legacyCount == 0 {
		return nil // fresh database, no bootstrap needed
	}

	_, err := conn.Exec(`CREATE TABLE goose_db_version (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL,
		is_applied INTEGER NOT NULL,
		tstamp TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create goose_db_version: %w", err)
	}

	_, err = conn.Exec(
		`INSERT INTO goose_db_version (version_id, is_applied, tstamp) VALUES (1, 1, datetime('now'))`,
	)
	if err != nil {
		return fmt.Errorf("insert goose version: %w", err)
	}
	return nil
}
