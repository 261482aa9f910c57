package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	_ "modernc.org/sqlite"
)

// WriteSQLite writes b into a fresh SQLite database at path. An existing
// file is replaced.
func WriteSQLite(ctx context.Context, b Bundle, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	dbClosed := false
	defer func() {
		if !dbClosed {
			db.Close()
		}
	}()

	if err := CreateSchema(ctx, db); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := insertRecords(ctx, db, b); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	if err := insertKPIs(ctx, db, b); err != nil {
		return fmt.Errorf("insert kpis: %w", err)
	}
	if err := insertInsights(ctx, db, b); err != nil {
		return fmt.Errorf("insert insights: %w", err)
	}
	if err := insertMeta(ctx, db, b); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	dbClosed = true
	return nil
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func insertRecords(ctx context.Context, db *sql.DB, b Bundle) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO records (id, module, kind, title, status, severity, criticality, category, bureau, value, secondary, created_at, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer recStmt.Close()

	asgStmt, err := tx.PrepareContext(ctx, `INSERT INTO assignments (record_id, module, bureau, role) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer asgStmt.Close()

	attrStmt, err := tx.PrepareContext(ctx, `INSERT INTO attributes (record_id, module, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer attrStmt.Close()

	for i := range b.Records {
		r := &b.Records[i]
		_, err := recStmt.ExecContext(ctx,
			r.ID,
			string(r.Module),
			string(r.Kind),
			r.Title,
			r.Status,
			string(r.Severity),
			string(r.Criticality),
			r.Category,
			r.Bureau,
			r.Value,
			r.Secondary,
			formatTime(r.Timestamp),
			formatTime(r.DueDate),
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		for _, a := range r.Assignments {
			if _, err := asgStmt.ExecContext(ctx, r.ID, string(r.Module), a.Bureau, string(a.Role)); err != nil {
				return fmt.Errorf("insert assignment %s/%s: %w", r.ID, a.Bureau, err)
			}
		}
		for _, k := range r.AttributeKeys() {
			if _, err := attrStmt.ExecContext(ctx, r.ID, string(r.Module), k, r.Attributes[k]); err != nil {
				return fmt.Errorf("insert attribute %s/%s: %w", r.ID, k, err)
			}
		}
	}
	return tx.Commit()
}

func insertKPIs(ctx context.Context, db *sql.DB, b Bundle) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO kpis (key, label, value, unit, trend, alert, series)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range b.KPIs {
		series, _ := json.Marshal(k.Series)
		alert := 0
		if k.Alert {
			alert = 1
		}
		if _, err := stmt.ExecContext(ctx, k.Key, k.Label, k.Value, string(k.Unit), k.Trend, alert, string(series)); err != nil {
			return fmt.Errorf("insert kpi %s: %w", k.Key, err)
		}
	}
	return tx.Commit()
}

func insertInsights(ctx context.Context, db *sql.DB, b Bundle) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO insights (id, kind, detector, severity, confidence, title, description, bureau, projected_at, record_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, in := range b.Insights {
		_, err := stmt.ExecContext(ctx,
			in.ID,
			string(in.Kind),
			in.Detector,
			string(in.Severity),
			in.Confidence,
			in.Title,
			in.Description,
			in.Bureau,
			formatTime(in.ProjectedAt),
			strings.Join(in.RecordIDs, ","),
		)
		if err != nil {
			return fmt.Errorf("insert insight %s: %w", in.ID, err)
		}
	}
	return tx.Commit()
}

func insertMeta(ctx context.Context, db *sql.DB, b Bundle) error {
	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"run_id":         b.RunID,
		"module":         string(b.Module),
		"generated_at":   b.GeneratedAt.UTC().Format(time.RFC3339),
		"source":         b.Source,
		"stale":          strconv.FormatBool(b.Stale),
		"record_count":   strconv.Itoa(len(b.Records)),
	}
	for k, v := range meta {
		if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO export_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	return nil
}
