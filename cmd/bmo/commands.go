package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/internal/api"
	"github.com/vanderheijden86/bmo/pkg/export"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/state"
	"github.com/vanderheijden86/bmo/pkg/ui"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ============================================================================
// kpis
// ============================================================================

func (a *app) kpisCmd() *cobra.Command {
	var (
		moduleName string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "kpis",
		Short: "Print the KPIs of a module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseModuleFlag(moduleName)
			if err != nil {
				return err
			}
			snap, err := a.snapshot(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res := snap.Analysis(m)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, struct {
					Module model.Module `json:"module"`
					Stale  bool         `json:"stale"`
					KPIs   any          `json:"kpis"`
				}{m, moduleStale(snap, m), res.KPIs})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KPI\tVALUE\tTREND\t")
			for _, k := range res.KPIs {
				label := k.Label
				if k.Alert {
					label = "! " + label
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t\n", label, ui.FormatKPIValue(k), ui.Sparkline(k.Series))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&moduleName, "module", "m", "", "Module (dashboard, evaluations, governance, tickets, recouvrements)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func moduleStale(snap *refresh.Snapshot, m model.Module) bool {
	if m == model.ModuleDashboard {
		return snap.AnyStale()
	}
	return snap.IsStale(m)
}

// ============================================================================
// insights
// ============================================================================

func (a *app) insightsCmd() *cobra.Command {
	var (
		moduleName string
		severity   string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Print the insights of a module, most severe first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseModuleFlag(moduleName)
			if err != nil {
				return err
			}
			var floor model.Severity
			if severity != "" {
				if floor = model.ParseSeverity(severity); floor == "" {
					return fmt.Errorf("unknown severity %q", severity)
				}
			}
			snap, err := a.snapshot(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			insights := snap.Analysis(m).Insights
			if floor != "" {
				kept := insights[:0:0]
				for _, in := range insights {
					if in.Severity.Rank() >= floor.Rank() {
						kept = append(kept, in)
					}
				}
				insights = kept
			}
			if limit > 0 && len(insights) > limit {
				insights = insights[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, insights)
			}
			if len(insights) == 0 {
				fmt.Fprintln(out, "No insights.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEVERITY\tKIND\tTITLE\tRECORDS\t")
			for _, in := range insights {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", in.Severity, in.Kind, in.Title, len(in.RecordIDs))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&moduleName, "module", "m", "", "Module")
	cmd.Flags().StringVar(&severity, "severity", "", "Only show insights at or above this severity")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of insights (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ============================================================================
// records
// ============================================================================

func (a *app) recordsCmd() *cobra.Command {
	var (
		moduleName string
		statuses   []string
		bureaus    []string
		severities []string
		query      string
		sortField  string
		desc       bool
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the records of a module with filters and sorting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseModuleFlag(moduleName)
			if err != nil {
				return err
			}
			f := state.Filter{Statuses: statuses, Bureaus: bureaus, Search: query}
			for _, s := range severities {
				sev := model.ParseSeverity(s)
				if sev == "" {
					return fmt.Errorf("unknown severity %q", s)
				}
				f.Severities = append(f.Severities, sev)
			}
			order := state.Sort{Desc: desc}
			if sortField != "" {
				order.Field = state.ParseSortField(sortField)
				if order.Field == state.SortDefault && !strings.EqualFold(sortField, state.SortDefault.String()) {
					return fmt.Errorf("unknown sort field %q", sortField)
				}
			}

			snap, err := a.snapshot(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			records := order.Sorted(f.Apply(moduleRecords(snap, m)))
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if records == nil {
					records = []model.Record{}
				}
				return writeJSON(out, records)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSEVERITY\tBUREAU\tVALUE\tTITLE\t")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\t\n", r.ID, r.Status, r.EffectiveSeverity(), r.Bureau, r.Value, r.Title)
			}
			return tw.Flush()
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&moduleName, "module", "m", "", "Module")
	fl.StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma-separated)")
	fl.StringSliceVar(&bureaus, "bureau", nil, "Filter by bureau")
	fl.StringSliceVar(&severities, "severity", nil, "Filter by severity")
	fl.StringVarP(&query, "query", "q", "", "Case-insensitive search over id, title, category and bureau")
	fl.StringVar(&sortField, "sort", "", "Sort field (id, title, status, severity, bureau, value, date, due)")
	fl.BoolVar(&desc, "desc", false, "Sort descending")
	fl.IntVar(&limit, "limit", 0, "Maximum number of records (0 = all)")
	fl.BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ============================================================================
// export
// ============================================================================

func (a *app) exportCmd() *cobra.Command {
	var (
		moduleName  string
		formatName  string
		dir         string
		upload      bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a module's records, KPIs and insights (json, md, sqlite, svg, png)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseModuleFlag(moduleName)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Export.Dir
			}
			out := cmd.OutOrStdout()

			if interactive {
				wc, err := export.RunWizard(out, export.WizardConfig{
					Module:    m,
					Format:    f,
					Dir:       dir,
					Upload:    upload,
					CanUpload: a.cfg.Export.S3Bucket != "",
				})
				if err != nil {
					return err
				}
				m, f, dir, upload = wc.Module, wc.Format, wc.Dir, wc.Upload
			}
			if upload && a.cfg.Export.S3Bucket == "" {
				return export.ErrNoBucket
			}

			snap, err := a.snapshot(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			bundle, err := export.NewBundle(snap, m, moduleRecords(snap, m), time.Now())
			if err != nil {
				return err
			}
			path, err := export.WriteFile(cmd.Context(), bundle, f, dir)
			if err != nil {
				return err
			}
			a.logger.Info("export_written", zap.String("module", string(m)), zap.String("format", string(f)), zap.String("path", path))
			fmt.Fprintln(out, path)

			if !upload {
				return nil
			}
			up, err := export.NewUploader(cmd.Context(), export.UploaderConfig{
				Bucket:   a.cfg.Export.S3Bucket,
				Prefix:   a.cfg.Export.S3Prefix,
				Region:   a.cfg.Export.S3Region,
				Endpoint: a.cfg.Export.S3Endpoint,
			})
			if err != nil {
				return err
			}
			uri, err := up.Upload(cmd.Context(), path, f)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, uri)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&moduleName, "module", "m", "", "Module")
	fl.StringVarP(&formatName, "format", "f", string(export.FormatJSON), "Format (json, md, sqlite, svg, png)")
	fl.StringVarP(&dir, "out", "o", "", "Output directory (default: export.dir)")
	fl.BoolVar(&upload, "s3", false, "Upload the file to export.s3_bucket afterwards")
	fl.BoolVarP(&interactive, "interactive", "i", false, "Choose module, format and destination interactively")
	return cmd
}

// ============================================================================
// serve
// ============================================================================

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest snapshot over a read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			prom := metrics.NewProm()
			rc, closeCache, err := a.workerConfig(prom)
			if err != nil {
				return err
			}
			defer closeCache()

			worker, err := refresh.New(rc)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := worker.Start(ctx); err != nil {
				return err
			}
			defer worker.Stop()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           api.NewHandler(api.Deps{Snapshots: worker, Prom: prom, Logger: a.logger}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", ln.Addr())
			a.logger.Info("server_started", zap.String("addr", ln.Addr().String()))
			return serve(ctx, srv, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

// serve runs srv on ln until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
