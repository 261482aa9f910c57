package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vanderheijden86/bmo/pkg/model"
)

func TestRecords_DeterministicAndValid(t *testing.T) {
	for _, m := range []model.Module{model.ModuleEvaluations, model.ModuleTickets, model.ModuleRecouvrements} {
		t.Run(string(m), func(t *testing.T) {
			a := NewDefault().Records(m, 50)
			b := NewDefault().Records(m, 50)
			if diff := cmp.Diff(a, b); diff != "" {
				t.Fatalf("same seed produced different records (-a +b):\n%s", diff)
			}
			AssertRecordCount(t, a, 50)
			AssertNoDuplicateIDs(t, a)
			AssertAllValid(t, a)
			for _, r := range a {
				if r.Module != m || r.Kind != model.DefaultKind(m) {
					t.Fatalf("record %s has module %s kind %s", r.ID, r.Module, r.Kind)
				}
			}
		})
	}
}

func TestGovernance_ProcessesThenAlerts(t *testing.T) {
	recs := NewDefault().Governance(10, 3)
	AssertRecordCount(t, recs, 13)
	AssertNoDuplicateIDs(t, recs)
	for i, r := range recs {
		want := model.KindRACI
		if i >= 10 {
			want = model.KindAlert
		}
		if r.Kind != want {
			t.Fatalf("record %d kind = %s, want %s", i, r.Kind, want)
		}
		if r.Kind == model.KindRACI && len(r.BureausWithRole(model.RoleAccountable)) != 1 {
			t.Fatalf("process %s should have exactly one accountable", r.ID)
		}
	}
}

func TestBuildSnapshot(t *testing.T) {
	data := NewDefault().AllModules(20)
	snap := BuildSnapshot(data, BaseTime)

	if snap.Total() != 20*3+20+5 {
		t.Fatalf("Total = %d", snap.Total())
	}
	if snap.AnyStale() {
		t.Fatal("fresh snapshot reported stale")
	}
	if len(snap.Analysis(model.ModuleTickets).KPIs) == 0 {
		t.Fatal("expected ticket KPIs")
	}

	stale := BuildSnapshotWith(data, map[model.Module]error{model.ModuleTickets: errors.New("down")}, BaseTime)
	if !stale.IsStale(model.ModuleTickets) || stale.IsStale(model.ModuleEvaluations) {
		t.Fatalf("stale modules = %v", stale.StaleModules())
	}
	if got := stale.CachedAt(model.ModuleTickets); !got.Equal(BaseTime.Add(-3600e9)) {
		t.Fatalf("CachedAt = %v", got)
	}
}

func TestMemorySource(t *testing.T) {
	recs := NewDefault().Records(model.ModuleTickets, 3)
	src := NewMemorySource(map[model.Module][]model.Record{model.ModuleTickets: recs})
	ctx := context.Background()

	got, err := src.Fetch(ctx, model.ModuleTickets)
	if err != nil {
		t.Fatal(err)
	}
	AssertIDs(t, got, GetIDs(recs)...)

	boom := errors.New("boom")
	src.SetError(model.ModuleTickets, boom)
	if _, err := src.Fetch(ctx, model.ModuleTickets); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	src.SetError(model.ModuleTickets, nil)

	if _, err := src.Fetch(ctx, model.ModuleEvaluations); err == nil {
		t.Fatal("expected error for missing module")
	}
	if src.Calls() != 3 {
		t.Fatalf("Calls = %d, want 3", src.Calls())
	}
}

func TestWriteModuleFile(t *testing.T) {
	dir := t.TempDir()
	recs := NewDefault().Records(model.ModuleEvaluations, 2)
	path := WriteModuleFile(t, dir, model.ModuleEvaluations, recs)
	if path == "" {
		t.Fatal("empty path")
	}
	if FindRecord(recs, recs[1].ID) != &recs[1] {
		t.Fatal("FindRecord should return a pointer into the slice")
	}
	if BuildRecordMap(recs)[recs[0].ID].Title != recs[0].Title {
		t.Fatal("BuildRecordMap mismatch")
	}
}
