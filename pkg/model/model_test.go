package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseModule(t *testing.T) {
	tests := []struct {
		in   string
		want Module
	}{
		{"dashboard", ModuleDashboard},
		{" Governance ", ModuleGovernance},
		{"RACI", ModuleGovernance},
		{"recovery", ModuleRecouvrements},
		{"tickets", ModuleTickets},
		{"evaluation", ModuleEvaluations},
	}
	for _, tt := range tests {
		got, err := ParseModule(tt.in)
		if err != nil {
			t.Fatalf("ParseModule(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseModule(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseModule("payroll"); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"R": RoleResponsible, "accountable": RoleAccountable, "Consulté": RoleConsulted, "i": RoleInformed,
	} {
		got, ok := ParseRole(in)
		if !ok || got != want {
			t.Errorf("ParseRole(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseRole("X"); ok {
		t.Error("ParseRole(X) should fail")
	}
	if !RoleAccountable.IsActive() || RoleConsulted.IsActive() {
		t.Error("only R and A are active roles")
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityCritical.Rank() > SeverityHigh.Rank() &&
		SeverityHigh.Rank() > SeverityMedium.Rank() &&
		SeverityMedium.Rank() > SeverityLow.Rank() &&
		SeverityLow.Rank() > Severity("").Rank()) {
		t.Error("severity ranks are not strictly ordered")
	}
	if ParseSeverity("Critique") != SeverityCritical {
		t.Error("French critique should map to critical")
	}
	if ParseSeverity("whatever") != "" {
		t.Error("unknown severity should be empty")
	}
}

func TestRecordValidate(t *testing.T) {
	r := Record{ID: "T-1", Module: ModuleTickets}
	if err := r.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	r.ID = "  "
	if err := r.Validate(); err == nil {
		t.Error("blank ID accepted")
	}

	r = Record{ID: "x", Module: "payroll"}
	if err := r.Validate(); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule, got %v", err)
	}

	r = Record{ID: "x", Module: ModuleGovernance, Assignments: []Assignment{{Role: RoleAccountable}}}
	if err := r.Validate(); err == nil {
		t.Error("assignment without bureau accepted")
	}
}

func TestActiveBureaus(t *testing.T) {
	r := Record{Assignments: []Assignment{
		{Bureau: "BF", Role: RoleResponsible},
		{Bureau: "BF", Role: RoleAccountable},
		{Bureau: "BJ", Role: RoleConsulted},
		{Bureau: "BA", Role: RoleAccountable},
	}}
	got := r.ActiveBureaus()
	if len(got) != 2 || got[0] != "BF" || got[1] != "BA" {
		t.Errorf("ActiveBureaus = %v", got)
	}
	if acc := r.BureausWithRole(RoleAccountable); len(acc) != 2 {
		t.Errorf("BureausWithRole(A) = %v", acc)
	}
}

func TestIsClosedLikeStatus(t *testing.T) {
	for _, s := range []string{"closed", "Resolved", "recouvré", " paid "} {
		if !IsClosedLikeStatus(s) {
			t.Errorf("%q should be closed-like", s)
		}
	}
	for _, s := range []string{"open", "in_progress", "en_cours", ""} {
		if IsClosedLikeStatus(s) {
			t.Errorf("%q should not be closed-like", s)
		}
	}
}

func TestUnixMillisZeroSentinel(t *testing.T) {
	if UnixMillis(time.Time{}) != 0 {
		t.Error("zero time should map to 0")
	}
	ts := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if UnixMillis(ts) != ts.UnixMilli() {
		t.Error("UnixMillis mismatch")
	}
}
