// Package api serves the latest refresh snapshot over HTTP as JSON.
package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/loader"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/state"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// SnapshotSource is the part of the refresh worker the API needs.
type SnapshotSource interface {
	Latest() *refresh.Snapshot
	Refresh() bool
}

// Deps wires the handler. Prom and Logger are optional.
type Deps struct {
	Snapshots SnapshotSource
	Prom      *metrics.Prom
	Logger    *zap.Logger
}

// NewHandler returns the router for the read API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &server{deps: deps, logger: deps.Logger.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/modules", s.handleModules)
		r.Route("/modules/{module}", func(r chi.Router) {
			r.Get("/kpis", s.withModule(s.handleKPIs))
			r.Get("/insights", s.withModule(s.handleInsights))
			r.Get("/records", s.withModule(s.handleRecords))
			r.Get("/timeline", s.withModule(s.handleTimeline))
		})
		r.Post("/refresh", s.handleRefresh)
	})
	if deps.Prom != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Prom.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

type server struct {
	deps   Deps
	logger *zap.Logger
}

// requestID echoes the caller's X-Request-ID or assigns a fresh one, and
// logs the request once it completes.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

type moduleHandler func(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot, m model.Module)

// withModule resolves {module} and the latest snapshot before calling h.
func (s *server) withModule(h moduleHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := model.ParseModule(chi.URLParam(r, "module"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		snap := s.latest(w)
		if snap == nil {
			return
		}
		h(w, r, snap, m)
	}
}

// latest returns the current snapshot, or writes 503 and returns nil.
func (s *server) latest(w http.ResponseWriter) *refresh.Snapshot {
	var snap *refresh.Snapshot
	if s.deps.Snapshots != nil {
		snap = s.deps.Snapshots.Latest()
	}
	if snap == nil {
		w.Header().Set("Retry-After", "5")
		httpError(w, http.StatusServiceUnavailable, "unavailable", "no snapshot yet: the first refresh has not completed")
		return nil
	}
	return snap
}

// ============================================================================
// Handlers
// ============================================================================

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Snapshots != nil {
		if snap := s.deps.Snapshots.Latest(); snap != nil {
			resp.Seq = snap.Seq
			resp.FetchedAt = snap.FetchedAt
			resp.Stale = snap.AnyStale()
		} else {
			resp.Status = "starting"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleModules(w http.ResponseWriter, r *http.Request) {
	snap := s.latest(w)
	if snap == nil {
		return
	}
	resp := modulesResponse{
		envelope: newEnvelope(snap, model.ModuleDashboard),
		Modules:  make([]moduleSummary, 0, len(model.Modules)),
	}
	for _, m := range model.Modules {
		res := snap.Analysis(m)
		sum := moduleSummary{
			Module:   m,
			Title:    m.Title(),
			Records:  len(moduleRecords(snap, m)),
			KPIs:     len(res.KPIs),
			Insights: len(res.Insights),
			Stale:    snap.IsStale(m),
			CachedAt: snap.CachedAt(m),
		}
		if err := snap.Err(m); err != nil {
			sum.Error = err.Error()
		}
		resp.Modules = append(resp.Modules, sum)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleKPIs(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot, m model.Module) {
	writeJSON(w, http.StatusOK, kpisResponse{
		envelope: newEnvelope(snap, m),
		KPIs:     nonNil(snap.Analysis(m).KPIs),
	})
}

func (s *server) handleInsights(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot, m model.Module) {
	insights := snap.Analysis(m).Insights
	if v := r.URL.Query().Get("severity"); v != "" {
		floor := model.ParseSeverity(v)
		if floor == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown severity %q", v)
			return
		}
		kept := make([]analysis.Insight, 0, len(insights))
		for _, in := range insights {
			if in.Severity.Rank() >= floor.Rank() {
				kept = append(kept, in)
			}
		}
		insights = kept
	}
	writeJSON(w, http.StatusOK, insightsResponse{
		envelope: newEnvelope(snap, m),
		Insights: nonNil(insights),
	})
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot, m model.Module) {
	q, err := parseRecordQuery(r.URL.Query())
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	all := moduleRecords(snap, m)
	matched := q.sort.Sorted(q.filter.Apply(all))

	page := matched
	if q.offset > 0 {
		page = page[min(q.offset, len(page)):]
	}
	if q.limit > 0 && q.limit < len(page) {
		page = page[:q.limit]
	}
	writeJSON(w, http.StatusOK, recordsResponse{
		envelope: newEnvelope(snap, m),
		Total:    len(all),
		Matched:  len(matched),
		Records:  nonNil(page),
	})
}

func (s *server) handleTimeline(w http.ResponseWriter, r *http.Request, snap *refresh.Snapshot, m model.Module) {
	writeJSON(w, http.StatusOK, timelineResponse{
		envelope: newEnvelope(snap, m),
		Timeline: nonNil(snap.Analysis(m).Timeline),
	})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		httpError(w, http.StatusServiceUnavailable, "unavailable", "no refresh worker")
		return
	}
	accepted := s.deps.Snapshots.Refresh()
	s.logger.Info("refresh_requested",
		zap.String("request_id", w.Header().Get(RequestIDHeader)),
		zap.Bool("accepted", accepted))
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

// ============================================================================
// Queries
// ============================================================================

type recordQuery struct {
	filter state.Filter
	sort   state.Sort
	limit  int
	offset int
}

// parseRecordQuery maps query parameters onto a filter and sort. List
// parameters accept repeated keys and comma-separated values.
func parseRecordQuery(v url.Values) (recordQuery, error) {
	var q recordQuery
	q.filter.Statuses = listParam(v, "status")
	q.filter.Bureaus = listParam(v, "bureau")
	q.filter.Categories = listParam(v, "category")
	for _, s := range listParam(v, "severity") {
		sev := model.ParseSeverity(s)
		if sev == "" {
			return q, fmt.Errorf("unknown severity %q", s)
		}
		q.filter.Severities = append(q.filter.Severities, sev)
	}
	q.filter.Search = v.Get("q")

	// The range is inclusive: a date-only "to" covers that whole day.
	for _, p := range []struct {
		key   string
		dst   *time.Time
		parse func(string) time.Time
	}{{"from", &q.filter.From, loader.ParseDate}, {"to", &q.filter.To, loader.ParseDateEnd}} {
		raw := v.Get(p.key)
		if raw == "" {
			continue
		}
		t := p.parse(raw)
		if t.IsZero() {
			return q, fmt.Errorf("%s: unrecognized date %q", p.key, raw)
		}
		*p.dst = t
	}
	for _, p := range []struct {
		key string
		dst **float64
	}{{"min", &q.filter.Min}, {"max", &q.filter.Max}} {
		raw := v.Get(p.key)
		if raw == "" {
			continue
		}
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return q, fmt.Errorf("%s: %w", p.key, err)
		}
		*p.dst = &f
	}

	if raw := v.Get("sort"); raw != "" {
		q.sort.Field = state.ParseSortField(raw)
		if q.sort.Field == state.SortDefault && !strings.EqualFold(raw, state.SortDefault.String()) {
			return q, fmt.Errorf("unknown sort field %q", raw)
		}
	}
	if raw := v.Get("desc"); raw != "" {
		desc, err := cast.ToBoolE(raw)
		if err != nil {
			return q, fmt.Errorf("desc: %w", err)
		}
		q.sort.Desc = desc
	}
	for _, p := range []struct {
		key string
		dst *int
	}{{"limit", &q.limit}, {"offset", &q.offset}} {
		raw := v.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := cast.ToIntE(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%s: want a non-negative integer, got %q", p.key, raw)
		}
		*p.dst = n
	}
	return q, nil
}

func listParam(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// moduleRecords returns the records of m. The dashboard aggregates every
// data module.
func moduleRecords(snap *refresh.Snapshot, m model.Module) []model.Record {
	if m != model.ModuleDashboard {
		return snap.Records(m)
	}
	var out []model.Record
	for _, dm := range model.Modules {
		if dm != model.ModuleDashboard {
			out = append(out, snap.Records(dm)...)
		}
	}
	return out
}

// ============================================================================
// Responses
// ============================================================================

type envelope struct {
	Module    model.Module `json:"module"`
	Seq       uint64       `json:"seq"`
	FetchedAt time.Time    `json:"fetched_at"`
	Stale     bool         `json:"stale"`
}

func newEnvelope(snap *refresh.Snapshot, m model.Module) envelope {
	stale := snap.IsStale(m)
	if m == model.ModuleDashboard {
		stale = snap.AnyStale()
	}
	return envelope{Module: m, Seq: snap.Seq, FetchedAt: snap.FetchedAt, Stale: stale}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Seq       uint64    `json:"seq"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Stale     bool      `json:"stale"`
}

type moduleSummary struct {
	Module   model.Module `json:"module"`
	Title    string       `json:"title"`
	Records  int          `json:"records"`
	KPIs     int          `json:"kpis"`
	Insights int          `json:"insights"`
	Stale    bool         `json:"stale"`
	CachedAt time.Time    `json:"cached_at,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type modulesResponse struct {
	envelope
	Modules []moduleSummary `json:"modules"`
}

type kpisResponse struct {
	envelope
	KPIs []analysis.KPI `json:"kpis"`
}

type insightsResponse struct {
	envelope
	Insights []analysis.Insight `json:"insights"`
}

type recordsResponse struct {
	envelope
	Total   int            `json:"total"`
	Matched int            `json:"matched"`
	Records []model.Record `json:"records"`
}

type timelineResponse struct {
	envelope
	Timeline []analysis.TimelineGroup `json:"timeline"`
}

// nonNil keeps empty collections as [] rather than null on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
