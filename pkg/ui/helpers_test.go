package ui

import (
	"testing"
	"time"

	"github.com/vanderheijden86/bmo/pkg/analysis"
)

func TestSparkline(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		want   string
	}{
		{"empty", nil, ""},
		{"flat", []float64{3, 3, 3}, "▁▁▁"},
		{"ramp", []float64{0, 7}, "▁█"},
		{"mid", []float64{0, 3.5, 7}, "▁▄█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sparkline(tt.series); got != tt.want {
				t.Errorf("Sparkline(%v) = %q, want %q", tt.series, got, tt.want)
			}
		})
	}
}

func TestFormatKPIValue(t *testing.T) {
	tests := []struct {
		kpi  analysis.KPI
		want string
	}{
		{analysis.KPI{Value: 12, Unit: analysis.UnitCount}, "12"},
		{analysis.KPI{Value: 1.25, Unit: analysis.UnitCount}, "1.25"},
		{analysis.KPI{Value: 42.345, Unit: analysis.UnitPercent}, "42.3%"},
		{analysis.KPI{Value: 1530, Unit: analysis.UnitAmount}, "1.5k"},
		{analysis.KPI{Value: 2_400_000, Unit: analysis.UnitAmount}, "2.4M"},
		{analysis.KPI{Value: 950, Unit: analysis.UnitAmount}, "950"},
		{analysis.KPI{Value: 3.25, Unit: analysis.UnitDays}, "3.2d"},
		{analysis.KPI{Value: 14.5, Unit: analysis.UnitScore}, "14.5"},
	}
	for _, tt := range tests {
		if got := FormatKPIValue(tt.kpi); got != tt.want {
			t.Errorf("FormatKPIValue(%v %s) = %q, want %q", tt.kpi.Value, tt.kpi.Unit, got, tt.want)
		}
	}
}

func TestFormatTimeRelAt(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "unknown"},
		{now.Add(time.Minute), "now"},
		{now.Add(-30 * time.Second), "now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
		{now.Add(-15 * 24 * time.Hour), "2w ago"},
		{now.Add(-65 * 24 * time.Hour), "2mo ago"},
	}
	for _, tt := range tests {
		if got := formatTimeRelAt(tt.at, now); got != tt.want {
			t.Errorf("formatTimeRelAt(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestTrendArrow(t *testing.T) {
	if trendArrow(0.5) != "↑" || trendArrow(-0.5) != "↓" || trendArrow(0.001) != "→" {
		t.Fatal("unexpected trend arrows")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("governance", 5); got != "gove…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("ok", 5); got != "ok" {
		t.Fatalf("truncate = %q", got)
	}
}
