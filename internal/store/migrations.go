package store

import (
	"database/sql"
	"fmt"

	"sovereign-research-orchestrator/internal/logging"
)

// Schema versions:
// v1: base spo_triplets table + FTS mirror (see initSchema).
// v2: reserved for future column additions.
const CurrentSchemaVersion = 1

// Migration describes an additive column migration applied to an existing table.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists schema migrations for columns added after the
// original table definition, applied only when the column is missing.
var pendingMigrations []Migration

// RunMigrations applies any pending column migrations idempotently.
func RunMigrations(db *sql.DB) error {
	for _, m := range pendingMigrations {
		has, err := hasColumn(db, m.Table, m.Column)
		if err != nil {
			return fmt.Errorf("checking column %s.%s: %w", m.Table, m.Column, err)
		}
		if has {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Get(logging.CategoryStore).Info("migration applied: %s.%s", m.Table, m.Column)
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
