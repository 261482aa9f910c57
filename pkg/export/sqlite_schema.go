package export

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is recorded in export_meta.
const SchemaVersion = 1

// CreateSchema creates all tables and indexes in the database.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if err := createCoreTables(ctx, db); err != nil {
		return fmt.Errorf("create core tables: %w", err)
	}
	if err := createIndexes(ctx, db); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// createCoreTables creates the records, assignments, attributes, kpis,
// insights and meta tables.
func createCoreTables(ctx context.Context, db *sql.DB) error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"records", `
			CREATE TABLE IF NOT EXISTS records (
				id TEXT NOT NULL,
				module TEXT NOT NULL,
				kind TEXT NOT NULL,
				title TEXT NOT NULL,
				status TEXT,
				severity TEXT,
				criticality TEXT,
				category TEXT,
				bureau TEXT,
				value REAL NOT NULL DEFAULT 0,
				secondary REAL NOT NULL DEFAULT 0,
				created_at TEXT,
				due_date TEXT,
				PRIMARY KEY (module, id)
			)`},
		{"assignments", `
			CREATE TABLE IF NOT EXISTS assignments (
				record_id TEXT NOT NULL,
				module TEXT NOT NULL,
				bureau TEXT NOT NULL,
				role TEXT NOT NULL
			)`},
		{"attributes", `
			CREATE TABLE IF NOT EXISTS attributes (
				record_id TEXT NOT NULL,
				module TEXT NOT NULL,
				key TEXT NOT NULL,
				value TEXT
			)`},
		{"kpis", `
			CREATE TABLE IF NOT EXISTS kpis (
				key TEXT PRIMARY KEY,
				label TEXT NOT NULL,
				value REAL NOT NULL,
				unit TEXT NOT NULL,
				trend REAL NOT NULL DEFAULT 0,
				alert INTEGER NOT NULL DEFAULT 0,
				series TEXT
			)`},
		{"insights", `
			CREATE TABLE IF NOT EXISTS insights (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				detector TEXT NOT NULL,
				severity TEXT NOT NULL,
				confidence REAL NOT NULL,
				title TEXT NOT NULL,
				description TEXT,
				bureau TEXT,
				projected_at TEXT,
				record_ids TEXT
			)`},
		{"export_meta", `
			CREATE TABLE IF NOT EXISTS export_meta (
				key TEXT PRIMARY KEY,
				value TEXT
			)`},
	}
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	return nil
}

func createIndexes(ctx context.Context, db *sql.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_records_status ON records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_records_bureau ON records(bureau)`,
		`CREATE INDEX IF NOT EXISTS idx_records_due ON records(due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_bureau ON assignments(bureau, role)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_severity ON insights(severity)`,
	}
	for _, ddl := range indexes {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
