// Package export writes module snapshots to files: JSON, Markdown, a SQLite
// database, and SVG or PNG KPI charts. Files can be pushed to S3.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/debug"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
)

// Format is an export output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatSQLite   Format = "sqlite"
	FormatSVG      Format = "svg"
	FormatPNG      Format = "png"
)

// Formats lists every format in menu order.
var Formats = []Format{FormatJSON, FormatMarkdown, FormatSQLite, FormatSVG, FormatPNG}

// ParseFormat accepts a format name or common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "sqlite", "sqlite3", "db":
		return FormatSQLite, nil
	case "svg":
		return FormatSVG, nil
	case "png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("unsupported format %q (want json, md, sqlite, svg or png)", s)
}

// Description is the one-line label shown in menus.
func (f Format) Description() string {
	switch f {
	case FormatJSON:
		return "records, KPIs and insights as JSON"
	case FormatMarkdown:
		return "human-readable report"
	case FormatSQLite:
		return "queryable SQLite database"
	case FormatSVG:
		return "KPI chart (vector)"
	case FormatPNG:
		return "KPI chart (raster)"
	}
	return string(f)
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == FormatSQLite {
		return ".sqlite3"
	}
	return "." + string(f)
}

// ContentType is used for uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatSQLite:
		return "application/vnd.sqlite3"
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	}
	return "application/octet-stream"
}

// Bundle is everything an export writes for one module.
type Bundle struct {
	RunID       string             `json:"run_id"`
	Module      model.Module       `json:"module"`
	GeneratedAt time.Time          `json:"generated_at"`
	Source      string             `json:"source,omitempty"`
	Stale       bool               `json:"stale"`
	Records     []model.Record     `json:"records"`
	KPIs        []analysis.KPI     `json:"kpis"`
	Insights    []analysis.Insight `json:"insights"`
}

// NewBundle collects module data from snap. records narrows the export to a
// subset (the selection, or the filtered list); nil exports every record of
// the module, and every record of every module for the dashboard.
func NewBundle(snap *refresh.Snapshot, m model.Module, records []model.Record, now time.Time) (Bundle, error) {
	if snap == nil {
		return Bundle{}, refresh.ErrEmptySnapshot
	}
	if records == nil {
		if m == model.ModuleDashboard {
			for _, mod := range model.Modules {
				records = append(records, snap.Records(mod)...)
			}
		} else {
			records = snap.Records(m)
		}
	}
	res := snap.Analysis(m)
	stale := snap.IsStale(m)
	if m == model.ModuleDashboard {
		stale = snap.AnyStale()
	}
	return Bundle{
		RunID:       uuid.NewString(),
		Module:      m,
		GeneratedAt: now.UTC(),
		Source:      snap.Source,
		Stale:       stale,
		Records:     append([]model.Record(nil), records...),
		KPIs:        res.KPIs,
		Insights:    res.Insights,
	}, nil
}

// WriteJSON writes b as indented JSON.
func WriteJSON(w io.Writer, b Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Write encodes b in a streaming format. SQLite needs a path; use WriteFile.
func Write(w io.Writer, b Bundle, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, b)
	case FormatMarkdown:
		return WriteMarkdown(w, b)
	case FormatSVG:
		return WriteSVGChart(w, b)
	case FormatPNG:
		return WritePNGChart(w, b)
	case FormatSQLite:
		return fmt.Errorf("sqlite export needs a file path")
	}
	return fmt.Errorf("unsupported format %q", f)
}

// FileName is the default name for an export of b.
func FileName(b Bundle, f Format) string {
	return fmt.Sprintf("bmo-%s-%s%s", b.Module, b.GeneratedAt.Format("20060102-150405"), f.Ext())
}

// WriteFile writes b into dir (or to dir itself when it has the format's
// extension) and returns the written path.
func WriteFile(ctx context.Context, b Bundle, f Format, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer metrics.TimerWithCallback(metrics.Export, func(d time.Duration) {
		debug.LogTiming("export."+string(f), d)
	})()
	path := dir
	if !strings.EqualFold(filepath.Ext(dir), f.Ext()) {
		path = filepath.Join(dir, FileName(b, f))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	if f == FormatSQLite {
		if err := WriteSQLite(ctx, b, path); err != nil {
			return "", err
		}
		return path, nil
	}

	// Write to a temp file then rename so readers never see partial output.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bmo-export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := Write(tmp, b, f); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write %s: %w", f, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename export: %w", err)
	}
	return path, nil
}
