// Package testutil provides deterministic record fixtures, in-memory sources
// and snapshot builders for tests across the module.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/vanderheijden86/bmo/internal/datasource"
	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
)

// BaseTime is the fixed clock used by fixtures.
var BaseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// GeneratorConfig controls record generation.
type GeneratorConfig struct {
	Seed      int64     // Random seed for determinism (0 = use current time)
	IDPrefix  string    // Prefix for record IDs (default: module-specific)
	BaseTime  time.Time // Base time for timestamps (default: BaseTime)
	Bureaus   []string  // Bureau pool (default: five bureaus)
	StatusMix []string  // Status distribution (nil = open, pending, closed)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:      42, // Deterministic
		BaseTime:  BaseTime,
		Bureaus:   []string{"DAF", "DRH", "DSI", "DJ", "DG"},
		StatusMix: []string{"open", "pending", "closed"},
	}
}

// Generator creates record fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	def := DefaultConfig()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = def.BaseTime
	}
	if len(cfg.Bureaus) == 0 {
		cfg.Bureaus = def.Bureaus
	}
	if len(cfg.StatusMix) == 0 {
		cfg.StatusMix = def.StatusMix
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

var severities = []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical}

func (g *Generator) prefix(m model.Module) string {
	if g.cfg.IDPrefix != "" {
		return g.cfg.IDPrefix
	}
	switch m {
	case model.ModuleEvaluations:
		return "EVAL"
	case model.ModuleGovernance:
		return "PROC"
	case model.ModuleTickets:
		return "TCK"
	case model.ModuleRecouvrements:
		return "CR"
	}
	return "STAT"
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

// Records generates n records of the module's default kind. IDs are
// <prefix>-<index> with zero padding, so they sort in generation order.
func (g *Generator) Records(m model.Module, n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = g.record(m, model.DefaultKind(m), i)
	}
	return out
}

func (g *Generator) record(m model.Module, kind model.Kind, i int) model.Record {
	created := g.cfg.BaseTime.Add(-time.Duration(g.rng.Intn(60*24)) * time.Hour)
	r := model.Record{
		ID:        fmt.Sprintf("%s-%05d", g.prefix(m), i),
		Module:    m,
		Kind:      kind,
		Title:     fmt.Sprintf("%s %s #%d", m.Title(), kind, i),
		Status:    g.pick(g.cfg.StatusMix),
		Severity:  severities[g.rng.Intn(len(severities))],
		Category:  g.pick([]string{"finance", "rh", "it", "legal"}),
		Bureau:    g.pick(g.cfg.Bureaus),
		Timestamp: created,
	}
	switch kind {
	case model.KindEvaluation:
		r.Value = float64(g.rng.Intn(21))
		r.Secondary = 20
	case model.KindTicket:
		r.DueDate = created.Add(time.Duration(24+g.rng.Intn(96)) * time.Hour)
	case model.KindCreance:
		r.Value = float64(1000 + g.rng.Intn(50000))
		r.Secondary = float64(g.rng.Intn(int(r.Value)))
		r.DueDate = created.Add(30 * 24 * time.Hour)
	case model.KindRACI:
		r.Criticality = r.Severity
		r.Severity = ""
		r.Status = ""
		r.Assignments = g.assignments()
	case model.KindAlert:
		r.DueDate = g.cfg.BaseTime.Add(time.Duration(g.rng.Intn(20*24)) * time.Hour)
	}
	return r
}

// assignments gives one responsible, one accountable and a consulted bureau.
func (g *Generator) assignments() []model.Assignment {
	perm := g.rng.Perm(len(g.cfg.Bureaus))
	out := []model.Assignment{
		{Bureau: g.cfg.Bureaus[perm[0]], Role: model.RoleResponsible},
	}
	if len(perm) > 1 {
		out = append(out, model.Assignment{Bureau: g.cfg.Bureaus[perm[1]], Role: model.RoleAccountable})
	}
	if len(perm) > 2 {
		out = append(out, model.Assignment{Bureau: g.cfg.Bureaus[perm[2]], Role: model.RoleConsulted})
	}
	return out
}

// Governance generates n RACI processes followed by alerts alerts.
func (g *Generator) Governance(processes, alerts int) []model.Record {
	out := make([]model.Record, 0, processes+alerts)
	for i := 0; i < processes; i++ {
		out = append(out, g.record(model.ModuleGovernance, model.KindRACI, i))
	}
	for i := 0; i < alerts; i++ {
		r := g.record(model.ModuleGovernance, model.KindAlert, i)
		r.ID = fmt.Sprintf("ALR-%05d", i)
		out = append(out, r)
	}
	return out
}

// AllModules generates n records for every data module (governance gets n
// processes and n/4 alerts).
func (g *Generator) AllModules(n int) map[model.Module][]model.Record {
	return map[model.Module][]model.Record{
		model.ModuleEvaluations:   g.Records(model.ModuleEvaluations, n),
		model.ModuleGovernance:    g.Governance(n, n/4),
		model.ModuleTickets:       g.Records(model.ModuleTickets, n),
		model.ModuleRecouvrements: g.Records(model.ModuleRecouvrements, n),
	}
}

// ============================================================================
// Snapshots and sources
// ============================================================================

// BuildSnapshot analyzes byModule with the base policy and returns a
// fresh snapshot with sequence 1.
func BuildSnapshot(byModule map[model.Module][]model.Record, now time.Time) *refresh.Snapshot {
	return BuildSnapshotWith(byModule, nil, now)
}

// BuildSnapshotWith is BuildSnapshot with stale modules. Stale modules are
// marked as served from a cache written an hour before now.
func BuildSnapshotWith(byModule map[model.Module][]model.Record, stale map[model.Module]error, now time.Time) *refresh.Snapshot {
	engine := analysis.NewEngine(analysis.BasePolicy())
	results := engine.AnalyzeAll(byModule, now)
	data := make(map[model.Module]refresh.ModuleData, len(byModule))
	for m, recs := range byModule {
		data[m] = refresh.ModuleData{Records: recs}
	}
	for m, err := range stale {
		d := data[m]
		d.Stale = true
		d.Err = err
		d.CachedAt = now.Add(-time.Hour)
		data[m] = d
	}
	return refresh.NewSnapshot(1, now, "memory", data, results)
}

// MemorySource serves fixed records and can be told to fail per module.
type MemorySource struct {
	mu      sync.Mutex
	records map[model.Module][]model.Record
	errs    map[model.Module]error
	calls   int
}

var _ datasource.Source = (*MemorySource)(nil)

// NewMemorySource creates a source over byModule.
func NewMemorySource(byModule map[model.Module][]model.Record) *MemorySource {
	return &MemorySource{records: byModule, errs: make(map[model.Module]error)}
}

// Name implements datasource.Source.
func (s *MemorySource) Name() string { return "memory" }

// SetError makes Fetch fail for m; nil clears it.
func (s *MemorySource) SetError(m model.Module, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, m)
		return
	}
	s.errs[m] = err
}

// SetRecords replaces the records of m.
func (s *MemorySource) SetRecords(m model.Module, recs []model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m] = recs
}

// Calls returns how many fetches were served.
func (s *MemorySource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Fetch implements datasource.Source.
func (s *MemorySource) Fetch(ctx context.Context, m model.Module) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[m]; err != nil {
		return nil, err
	}
	recs, ok := s.records[m]
	if !ok {
		return nil, fmt.Errorf("%s: %w", m, datasource.ErrNotFound)
	}
	return append([]model.Record(nil), recs...), nil
}
