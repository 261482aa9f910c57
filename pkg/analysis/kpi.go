package analysis

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// Unit describes how a KPI value is displayed.
type Unit string

const (
	UnitCount   Unit = "count"
	UnitPercent Unit = "percent"
	UnitAmount  Unit = "amount"
	UnitDays    Unit = "days"
	UnitScore   Unit = "score"
)

// KPI is one value shown in a module's KPI bar.
type KPI struct {
	Key    string    `json:"key"`
	Label  string    `json:"label"`
	Value  float64   `json:"value"`
	Unit   Unit      `json:"unit"`
	Series []float64 `json:"series,omitempty"`
	Trend  float64   `json:"trend,omitempty"`
	// Alert marks values that need attention (breaches, critical items).
	Alert bool `json:"alert,omitempty"`
}

// CountBy counts records per bucket. The counts sum to len(records) only
// when key yields exhaustive, mutually exclusive buckets.
func CountBy(records []model.Record, key func(*model.Record) string) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		counts[key(&records[i])]++
	}
	return counts
}

// CountByStatus counts records per status ("" for missing).
func CountByStatus(records []model.Record) map[string]int {
	return CountBy(records, func(r *model.Record) string { return r.Status })
}

// CountBySeverity counts records per severity ("" for missing).
func CountBySeverity(records []model.Record) map[string]int {
	return CountBy(records, func(r *model.Record) string { return string(r.Severity) })
}

// Bucket is one entry of an ordered count breakdown.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Buckets orders counts by count descending, then key.
func Buckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, Bucket{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Rate returns n/total, or 0 when total is 0.
func Rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// RateF is Rate for amounts. Non-finite or zero totals yield 0.
func RateF(n, total float64) float64 {
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) || math.IsNaN(n) {
		return 0
	}
	return n / total
}

// Percent returns Rate as a percentage.
func Percent(n, total int) float64 {
	return Rate(n, total) * 100
}

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev returns the sample standard deviation, or 0 for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Sparkline returns daily counts of records whose timestamp falls in each of
// the `days` days ending on end's day (oldest first). Records outside the
// window or without a timestamp are ignored.
func Sparkline(records []model.Record, end time.Time, days int, ts func(*model.Record) time.Time) []float64 {
	if days <= 0 {
		return nil
	}
	series := make([]float64, days)
	last := truncateDay(end)
	for i := range records {
		t := ts(&records[i])
		if t.IsZero() {
			continue
		}
		idx := days - 1 - DaysUntil(t, last)
		if idx >= 0 && idx < days {
			series[idx]++
		}
	}
	return series
}

func byTimestamp(r *model.Record) time.Time { return r.Timestamp }

// Trend returns the least-squares slope of series against its index, or 0
// for fewer than two points.
func Trend(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, series, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

// DaysOverdue returns the explicit days-overdue attribute when present,
// otherwise the days elapsed since the due date (0 when not yet due).
func DaysOverdue(r *model.Record, now time.Time) int {
	if v := r.Attr(model.AttrDaysOverdue); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		return 0
	}
	if r.DueDate.IsZero() {
		return 0
	}
	if d := -DaysUntil(now, r.DueDate); d > 0 {
		return d
	}
	return 0
}

func ofKind(records []model.Record, kind model.Kind) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func countWhere(records []model.Record, pred func(*model.Record) bool) int {
	n := 0
	for i := range records {
		if pred(&records[i]) {
			n++
		}
	}
	return n
}

func withTrend(k KPI) KPI {
	k.Trend = Trend(k.Series)
	return k
}

// ComputeKPIs derives the KPI bar for one module. The dashboard module is
// handled by ComputeDashboardKPIs.
func ComputeKPIs(module model.Module, records []model.Record, now time.Time, p Policy) []KPI {
	days := p.SparklineDays
	switch module {
	case model.ModuleEvaluations:
		return evaluationKPIs(records, now, days)
	case model.ModuleGovernance:
		return governanceKPIs(records, now, days)
	case model.ModuleTickets:
		return ticketKPIs(records, now, days, time.Duration(p.DueSoonHours)*time.Hour)
	case model.ModuleRecouvrements:
		return recoveryKPIs(records, now, days)
	default:
		return statKPIs(records)
	}
}

func evaluationKPIs(records []model.Record, now time.Time, days int) []KPI {
	completed := countWhere(records, (*model.Record).IsClosed)
	var scores []float64
	for _, r := range records {
		if r.Value != 0 {
			scores = append(scores, r.Value)
		}
	}
	return []KPI{
		withTrend(KPI{Key: "total", Label: "Evaluations", Value: float64(len(records)), Unit: UnitCount,
			Series: Sparkline(records, now, days, byTimestamp)}),
		{Key: "completed", Label: "Completed", Value: float64(completed), Unit: UnitCount},
		{Key: "completion_rate", Label: "Completion", Value: Percent(completed, len(records)), Unit: UnitPercent},
		{Key: "mean_score", Label: "Mean score", Value: Mean(scores), Unit: UnitScore},
		{Key: "score_stddev", Label: "Score spread", Value: StdDev(scores), Unit: UnitScore},
	}
}

func governanceKPIs(records []model.Record, now time.Time, days int) []KPI {
	raci := raciRecords(records)
	noAccountable := 0
	for _, r := range raci {
		if r.IsCritical() && len(r.BureausWithRole(model.RoleAccountable)) == 0 {
			noAccountable++
		}
	}
	alerts := ofKind(records, model.KindAlert)
	active := countWhere(alerts, func(r *model.Record) bool { return !r.IsClosed() })
	critical := countWhere(alerts, func(r *model.Record) bool { return !r.IsClosed() && r.Severity == model.SeverityCritical })
	return []KPI{
		{Key: "activities", Label: "Activities", Value: float64(len(raci)), Unit: UnitCount},
		{Key: "critical_no_accountable", Label: "Critical w/o A", Value: float64(noAccountable), Unit: UnitCount, Alert: noAccountable > 0},
		withTrend(KPI{Key: "active_alerts", Label: "Active alerts", Value: float64(active), Unit: UnitCount,
			Series: Sparkline(alerts, now, days, byTimestamp)}),
		{Key: "critical_alerts", Label: "Critical alerts", Value: float64(critical), Unit: UnitCount, Alert: critical > 0},
	}
}

func ticketKPIs(records []model.Record, now time.Time, days int, dueSoon time.Duration) []KPI {
	open := countWhere(records, func(r *model.Record) bool { return !r.IsClosed() })
	resolved := len(records) - open
	breached := countWhere(records, func(r *model.Record) bool { return SLAStatus(r, now, dueSoon) == SLABreached })
	soon := countWhere(records, func(r *model.Record) bool { return SLAStatus(r, now, dueSoon) == SLADueSoon })
	return []KPI{
		withTrend(KPI{Key: "open", Label: "Open", Value: float64(open), Unit: UnitCount,
			Series: Sparkline(records, now, days, byTimestamp)}),
		{Key: "resolved_rate", Label: "Resolved", Value: Percent(resolved, len(records)), Unit: UnitPercent},
		{Key: "sla_breached", Label: "SLA breached", Value: float64(breached), Unit: UnitCount, Alert: breached > 0},
		{Key: "due_soon", Label: "Due soon", Value: float64(soon), Unit: UnitCount},
	}
}

// IsLitigation reports whether a claim is in litigation.
func IsLitigation(r *model.Record) bool {
	return strings.Contains(r.Status, "litig") || strings.Contains(r.Status, "contentieux")
}

// Recovered returns the recovered amount of a claim: the explicit recovered
// field, or the full amount once the claim is closed.
func Recovered(r *model.Record) float64 {
	if r.Secondary > 0 {
		return r.Secondary
	}
	if r.IsClosed() && r.Status != "written_off" {
		return r.Value
	}
	return 0
}

func recoveryKPIs(records []model.Record, now time.Time, days int) []KPI {
	var total, recovered float64
	var overdue []float64
	for i := range records {
		r := &records[i]
		total += r.Value
		recovered += Recovered(r)
		if !r.IsClosed() {
			if d := DaysOverdue(r, now); d > 0 {
				overdue = append(overdue, float64(d))
			}
		}
	}
	litigation := countWhere(records, IsLitigation)
	return []KPI{
		withTrend(KPI{Key: "total_amount", Label: "Outstanding", Value: total, Unit: UnitAmount,
			Series: Sparkline(records, now, days, byTimestamp)}),
		{Key: "recovered_amount", Label: "Recovered", Value: recovered, Unit: UnitAmount},
		{Key: "recovery_rate", Label: "Recovery rate", Value: RateF(recovered, total) * 100, Unit: UnitPercent},
		{Key: "mean_days_overdue", Label: "Mean days late", Value: Mean(overdue), Unit: UnitDays, Alert: Mean(overdue) > 90},
		{Key: "litigation", Label: "Litigation", Value: float64(litigation), Unit: UnitCount},
	}
}

// statKPIs turns stat records (from a stats endpoint) into KPIs in order.
func statKPIs(records []model.Record) []KPI {
	var out []KPI
	for _, r := range records {
		if r.Kind != model.KindStat {
			continue
		}
		out = append(out, KPI{Key: r.Title, Label: r.Title, Value: r.Value, Unit: UnitCount})
	}
	return out
}

// ComputeDashboardKPIs summarizes every module for the dashboard bar,
// followed by any stat records fetched for the dashboard itself.
func ComputeDashboardKPIs(byModule map[model.Module][]model.Record, now time.Time, p Policy) []KPI {
	var out []KPI
	for _, m := range model.Modules {
		if m == model.ModuleDashboard {
			continue
		}
		out = append(out, KPI{Key: string(m), Label: m.Title(), Value: float64(len(byModule[m])), Unit: UnitCount})
	}

	gov := byModule[model.ModuleGovernance]
	critical := countWhere(gov, func(r *model.Record) bool {
		return r.Kind == model.KindAlert && !r.IsClosed() && r.Severity == model.SeverityCritical
	})
	out = append(out, KPI{Key: "critical_alerts", Label: "Critical alerts", Value: float64(critical), Unit: UnitCount, Alert: critical > 0})

	dueSoon := time.Duration(p.DueSoonHours) * time.Hour
	tickets := byModule[model.ModuleTickets]
	breached := countWhere(tickets, func(r *model.Record) bool { return SLAStatus(r, now, dueSoon) == SLABreached })
	out = append(out, KPI{Key: "sla_breached", Label: "SLA breached", Value: float64(breached), Unit: UnitCount, Alert: breached > 0})

	var total, recovered float64
	for i := range byModule[model.ModuleRecouvrements] {
		r := &byModule[model.ModuleRecouvrements][i]
		total += r.Value
		recovered += Recovered(r)
	}
	out = append(out, KPI{Key: "recovery_rate", Label: "Recovery rate", Value: RateF(recovered, total) * 100, Unit: UnitPercent})

	return append(out, statKPIs(byModule[model.ModuleDashboard])...)
}
