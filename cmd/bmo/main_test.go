package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/testutil"
	"github.com/vanderheijden86/bmo/pkg/version"
)

// isolate points every config, state and cache location at a temp dir and
// clears the environment overrides.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	for _, k := range []string{"BMO_SOURCE_URL", "BMO_SOURCE_DIR", "BMO_SOURCE_TOKEN", envDebug, envLogFile} {
		t.Setenv(k, "")
	}
	t.Setenv("BMO_CACHE_PATH", filepath.Join(root, "cache.db"))
	return root
}

func writeFixtures(t *testing.T, dir string, skip ...model.Module) {
	t.Helper()
	for m, recs := range testutil.NewDefault().AllModules(20) {
		skipped := false
		for _, s := range skip {
			skipped = skipped || s == m
		}
		if !skipped {
			testutil.WriteModuleFile(t, dir, m, recs)
		}
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, _, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "bmo "+version.Version) {
		t.Fatalf("version output = %q", out)
	}
}

func TestNoSourceConfigured(t *testing.T) {
	isolate(t)
	_, _, err := run(t, "kpis")
	if err == nil || !strings.Contains(err.Error(), "no data source configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestUnknownModuleFlag(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)
	_, _, err := run(t, "kpis", "--source-dir", root, "--module", "payroll")
	if err == nil || !strings.Contains(err.Error(), "payroll") {
		t.Fatalf("err = %v", err)
	}
}

func TestKPIsJSON(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)

	out, _, err := run(t, "kpis", "--source-dir", root, "--module", "tickets", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Module model.Module   `json:"module"`
		Stale  bool           `json:"stale"`
		KPIs   []analysis.KPI `json:"kpis"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if body.Module != model.ModuleTickets || body.Stale || len(body.KPIs) == 0 {
		t.Fatalf("body = %+v", body)
	}
}

func TestKPIsTable(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)

	out, _, err := run(t, "kpis", "--source-dir", root, "-m", "recouvrements")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "KPI") || strings.Count(out, "\n") < 2 {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestStaleModuleWarning(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root, model.ModuleTickets)

	out, stderr, err := run(t, "kpis", "--source-dir", root, "--module", "tickets", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "warning: tickets") {
		t.Fatalf("stderr = %q", stderr)
	}
	if !strings.Contains(out, `"stale": true`) {
		t.Fatalf("stdout = %s", out)
	}
}

func TestRecordsFilterAndSort(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)

	out, _, err := run(t, "records", "--source-dir", root, "-m", "tickets",
		"--severity", "critical,high", "--sort", "id", "--desc", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var recs []model.Record
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	for i, r := range recs {
		if r.Severity != model.SeverityCritical && r.Severity != model.SeverityHigh {
			t.Fatalf("record %s has severity %s", r.ID, r.Severity)
		}
		if i > 0 && recs[i-1].ID < r.ID {
			t.Fatal("records should be sorted by descending ID")
		}
	}

	out, _, err = run(t, "records", "--source-dir", root, "-m", "tickets", "-q", "00003", "--json")
	if err != nil {
		t.Fatal(err)
	}
	recs = nil
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "TCK-00003" {
		t.Fatalf("search = %+v", recs)
	}
}

func TestRecordsRejectsBadFlags(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)
	for _, args := range [][]string{
		{"--severity", "apocalyptic"},
		{"--sort", "shoe-size"},
	} {
		_, _, err := run(t, append([]string{"records", "--source-dir", root}, args...)...)
		if err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestInsightsLimit(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)

	out, _, err := run(t, "insights", "--source-dir", root, "-m", "governance", "--limit", "2", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var ins []analysis.Insight
	if err := json.Unmarshal([]byte(out), &ins); err != nil {
		t.Fatal(err)
	}
	if len(ins) > 2 {
		t.Fatalf("got %d insights, want at most 2", len(ins))
	}
}

func TestExportMarkdown(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)
	outDir := filepath.Join(root, "out")

	out, _, err := run(t, "export", "--source-dir", root, "-m", "tickets", "-f", "md", "-o", outDir)
	if err != nil {
		t.Fatal(err)
	}
	path := strings.TrimSpace(out)
	if filepath.Dir(path) != outDir || filepath.Ext(path) != ".md" {
		t.Fatalf("export path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "TCK-00001") {
		t.Fatal("markdown export should list the records")
	}
}

func TestExportUploadNeedsBucket(t *testing.T) {
	root := isolate(t)
	writeFixtures(t, root)
	_, _, err := run(t, "export", "--source-dir", root, "--s3", "-o", root)
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("err = %v", err)
	}
}

func TestInvalidConfigFile(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "bad.yaml")
	if err := os.WriteFile(path, []byte("refresh:\n  overlap: sometimes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := run(t, "version", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "overlap") {
		t.Fatalf("err = %v", err)
	}
}
