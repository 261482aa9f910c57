package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/testutil"
)

type fakeSource struct {
	mu        sync.Mutex
	snap      *refresh.Snapshot
	refreshes int
}

func (f *fakeSource) Latest() *refresh.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(snap *refresh.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeSource) Refresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshes == 1
}

func newTestServer(t *testing.T, snap *refresh.Snapshot) (*httptest.Server, *fakeSource, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	src := &fakeSource{snap: snap}
	prom := metrics.NewProm()
	prom.SetRecords("tickets", 3)
	srv := httptest.NewServer(NewHandler(Deps{Snapshots: src, Prom: prom, Logger: zap.New(core)}))
	t.Cleanup(srv.Close)
	return srv, src, logs
}

func fixtureSnapshot(stale map[model.Module]error) *refresh.Snapshot {
	return testutil.BuildSnapshotWith(testutil.NewDefault().AllModules(20), stale, testutil.BaseTime)
}

func get(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decoding: %v", path, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, src, _ := newTestServer(t, nil)

	var h healthResponse
	if resp := get(t, srv, "/health", &h); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if h.Status != "starting" || h.Seq != 0 {
		t.Fatalf("health = %+v", h)
	}

	src.set(fixtureSnapshot(nil))
	get(t, srv, "/health", &h)
	if h.Status != "ok" || h.Seq != 1 || h.Stale {
		t.Fatalf("health = %+v", h)
	}
}

func TestUnavailableBeforeFirstSnapshot(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	for _, path := range []string{"/api/modules", "/api/modules/tickets/kpis", "/api/modules/tickets/records"} {
		resp := get(t, srv, path, nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, resp.StatusCode)
		}
		if resp.Header.Get("Retry-After") == "" {
			t.Errorf("%s: missing Retry-After", path)
		}
	}
}

func TestUnknownModule(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(nil))
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	resp := get(t, srv, "/api/modules/payroll/kpis", &body)
	if resp.StatusCode != http.StatusNotFound || body.Error.Type != "not_found" {
		t.Fatalf("status = %d body = %+v", resp.StatusCode, body)
	}
}

func TestModules(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(map[model.Module]error{
		model.ModuleTickets: errors.New("upstream 502"),
	}))
	var body modulesResponse
	if resp := get(t, srv, "/api/modules", &body); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !body.Stale || len(body.Modules) != len(model.Modules) {
		t.Fatalf("stale = %v modules = %d", body.Stale, len(body.Modules))
	}
	byModule := make(map[model.Module]moduleSummary)
	for _, m := range body.Modules {
		byModule[m.Module] = m
	}
	tickets := byModule[model.ModuleTickets]
	if !tickets.Stale || tickets.Error != "upstream 502" || tickets.Records != 20 {
		t.Fatalf("tickets = %+v", tickets)
	}
	if byModule[model.ModuleEvaluations].Stale {
		t.Fatal("evaluations should be fresh")
	}
	if got := byModule[model.ModuleDashboard].Records; got != 85 {
		t.Fatalf("dashboard records = %d, want 85", got)
	}
}

func TestKPIsEchoStaleFlag(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(map[model.Module]error{
		model.ModuleTickets: errors.New("timeout"),
	}))

	var body kpisResponse
	get(t, srv, "/api/modules/tickets/kpis", &body)
	if !body.Stale || body.Module != model.ModuleTickets || len(body.KPIs) == 0 {
		t.Fatalf("tickets kpis = %+v", body)
	}

	body = kpisResponse{}
	get(t, srv, "/api/modules/evaluations/kpis", &body)
	if body.Stale {
		t.Fatal("evaluations should not be stale")
	}
}

func TestRecordsQuery(t *testing.T) {
	snap := fixtureSnapshot(nil)
	srv, _, _ := newTestServer(t, snap)

	var all recordsResponse
	get(t, srv, "/api/modules/tickets/records", &all)
	if all.Total != 20 || all.Matched != 20 || len(all.Records) != 20 {
		t.Fatalf("total = %d matched = %d records = %d", all.Total, all.Matched, len(all.Records))
	}

	var crit recordsResponse
	get(t, srv, "/api/modules/tickets/records?severity=critical&sort=id&desc=true", &crit)
	want := 0
	for _, r := range snap.Records(model.ModuleTickets) {
		if r.Severity == model.SeverityCritical {
			want++
		}
	}
	if crit.Matched != want {
		t.Fatalf("critical matched = %d, want %d", crit.Matched, want)
	}
	for i, r := range crit.Records {
		if r.Severity != model.SeverityCritical {
			t.Fatalf("record %s has severity %s", r.ID, r.Severity)
		}
		if i > 0 && crit.Records[i-1].ID < r.ID {
			t.Fatal("records should be sorted by descending ID")
		}
	}

	var search recordsResponse
	get(t, srv, "/api/modules/tickets/records?q=00003", &search)
	if search.Matched != 1 || search.Records[0].ID != "TCK-00003" {
		t.Fatalf("search = %+v", search.Records)
	}

	var page recordsResponse
	get(t, srv, "/api/modules/tickets/records?sort=id&offset=5&limit=3", &page)
	if page.Matched != 20 || len(page.Records) != 3 || page.Records[0].ID != "TCK-00005" {
		t.Fatalf("page = %d records starting at %v", len(page.Records), page.Records)
	}

	var amounts recordsResponse
	get(t, srv, "/api/modules/recouvrements/records?min=20000&max=40000", &amounts)
	for _, r := range amounts.Records {
		if r.Value < 20000 || r.Value > 40000 {
			t.Fatalf("record %s value %v outside range", r.ID, r.Value)
		}
	}
}

func TestRecordsQueryDateRangeIsInclusive(t *testing.T) {
	morning := model.Record{ID: "T-1", Timestamp: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	nextDay := model.Record{ID: "T-2", Timestamp: time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)}
	for _, to := range []string{"15/01/2026", "2026-01-15"} {
		q, err := parseRecordQuery(url.Values{"from": {to}, "to": {to}})
		if err != nil {
			t.Fatal(err)
		}
		if !q.filter.Matches(&morning) {
			t.Errorf("to=%s should include a record at 10:00 that day (to = %v)", to, q.filter.To)
		}
		if q.filter.Matches(&nextDay) {
			t.Errorf("to=%s should exclude the next day", to)
		}
	}
}

func TestRecordsQueryRejectsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(nil))
	for _, q := range []string{
		"severity=apocalyptic",
		"from=not-a-date",
		"min=abc",
		"desc=maybe",
		"sort=shoe-size",
		"limit=-1",
	} {
		resp := get(t, srv, "/api/modules/tickets/records?"+q, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestInsightsSeverityFloor(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(nil))
	var body insightsResponse
	get(t, srv, "/api/modules/governance/insights?severity=high", &body)
	for _, in := range body.Insights {
		if in.Severity.Rank() < model.SeverityHigh.Rank() {
			t.Fatalf("insight %s below the floor: %s", in.ID, in.Severity)
		}
	}
}

func TestTimeline(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(nil))
	var body timelineResponse
	get(t, srv, "/api/modules/governance/timeline", &body)
	n := 0
	for _, g := range body.Timeline {
		n += len(g.Alerts)
	}
	if n != 5 {
		t.Fatalf("timeline holds %d alerts, want 5", n)
	}

	// Modules without alerts return an empty list, not null.
	resp, err := http.Get(srv.URL + "/api/modules/tickets/timeline")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["timeline"]) != "[]" {
		t.Fatalf("timeline = %s", raw["timeline"])
	}
}

func TestRefreshAndRequestID(t *testing.T) {
	srv, src, logs := newTestServer(t, fixtureSnapshot(nil))

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/refresh", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted || !body["accepted"] || src.calls() != 1 {
		t.Fatalf("status = %d body = %v refreshes = %d", resp.StatusCode, body, src.calls())
	}
	if got := resp.Header.Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q", got)
	}
	entries := logs.FilterMessage("refresh_requested").All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "req-42" {
		t.Fatalf("log entries = %+v", entries)
	}

	// A generated ID is returned when the caller sends none.
	resp2 := get(t, srv, "/health", nil)
	if len(resp2.Header.Get(RequestIDHeader)) != 36 {
		t.Fatalf("generated request id = %q", resp2.Header.Get(RequestIDHeader))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, fixtureSnapshot(nil))
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `bmo_records{module="tickets"} 3`) {
		t.Fatalf("metrics output missing records gauge:\n%s", buf.String())
	}
}
