package analysis

import (
	"fmt"
	"time"

	"github.com/vanderheijden86/bmo/pkg/debug"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// Result is everything derived from one module's collection.
type Result struct {
	Module     model.Module    `json:"module"`
	KPIs       []KPI           `json:"kpis"`
	Insights   []Insight       `json:"insights"`
	Timeline   []TimelineGroup `json:"timeline,omitempty"`
	Loads      []BureauLoad    `json:"loads,omitempty"`
	Hash       string          `json:"hash"`
	ComputedAt time.Time       `json:"computed_at"`
}

func (r Result) clone() Result {
	out := r
	out.KPIs = append([]KPI(nil), r.KPIs...)
	out.Insights = append([]Insight(nil), r.Insights...)
	out.Timeline = append([]TimelineGroup(nil), r.Timeline...)
	out.Loads = append([]BureauLoad(nil), r.Loads...)
	return out
}

// Engine runs the detectors and KPI computations for a policy. It is safe
// for concurrent use; results for an unchanged snapshot come from a cache.
type Engine struct {
	policy Policy
	cache  *Cache
}

// NewEngine creates an engine for p.
func NewEngine(p Policy) *Engine {
	return &Engine{policy: p, cache: NewCache()}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) cacheKey(hash string, now time.Time) string {
	return fmt.Sprintf("%s|%d|%v", hash, now.Truncate(time.Minute).Unix(), e.policy)
}

// Analyze computes KPIs and sorted insights for one module's collection.
// Every call returns fresh slices; insights are never shared between calls.
func (e *Engine) Analyze(module model.Module, records []model.Record, now time.Time) Result {
	hash := ComputeDataHash(records)
	key := e.cacheKey(hash, now)
	if res, ok := e.cache.Get(module, key); ok {
		metrics.AnalysisCache.Hit()
		return res
	}
	metrics.AnalysisCache.Miss()
	defer metrics.Timer(metrics.Analyze)()

	res := Result{
		Module:     module,
		KPIs:       ComputeKPIs(module, records, now, e.policy),
		Insights:   e.detect(module, records, now),
		Hash:       hash,
		ComputedAt: now,
	}
	if module == model.ModuleGovernance {
		res.Timeline = Timeline(records)
		res.Loads = ParticipationRates(records)
	}
	debug.Log("analysis: %s %d records -> %d insights", module, len(records), len(res.Insights))

	e.cache.Set(module, key, res)
	return res
}

func (e *Engine) detect(module model.Module, records []model.Record, now time.Time) []Insight {
	p := e.policy
	var out []Insight
	if module == model.ModuleGovernance {
		out = append(out, DetectMissingAccountable(records, p)...)
		out = append(out, DetectMultipleAccountable(records, p)...)
		out = append(out, DetectLoadDistribution(records, p)...)
		out = append(out, DetectClusters(records, p)...)
		out = append(out, PredictRecurringBlockages(records, p)...)
	}
	out = append(out, PredictDeadlines(records, now, p)...)
	SortInsights(out)
	return out
}

// AnalyzeAll analyzes every module and builds the dashboard result, whose
// insights are the union of all module insights re-sorted.
func (e *Engine) AnalyzeAll(byModule map[model.Module][]model.Record, now time.Time) map[model.Module]Result {
	results := make(map[model.Module]Result, len(model.Modules))
	var all []Insight
	for _, m := range model.Modules {
		if m == model.ModuleDashboard {
			continue
		}
		res := e.Analyze(m, byModule[m], now)
		results[m] = res
		all = append(all, res.Insights...)
	}
	SortInsights(all)
	results[model.ModuleDashboard] = Result{
		Module:     model.ModuleDashboard,
		KPIs:       ComputeDashboardKPIs(byModule, now, e.policy),
		Insights:   all,
		Hash:       ComputeDataHash(byModule[model.ModuleDashboard]),
		ComputedAt: now,
	}
	return results
}
