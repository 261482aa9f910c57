package refresh

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// Snapshot is one consistent view of every module. It is never modified
// after it is published; accessors return shared slices that callers must
// treat as read-only.
type Snapshot struct {
	Seq       uint64
	FetchedAt time.Time
	Source    string
	Hash      string

	records  map[model.Module][]model.Record
	index    map[model.Module]map[string]int
	results  map[model.Module]analysis.Result
	stale    map[model.Module]bool
	errs     map[model.Module]error
	cachedAt map[model.Module]time.Time
}

// ModuleData is the per-module input to NewSnapshot.
type ModuleData struct {
	Records []model.Record
	Stale   bool
	Err     error
	// CachedAt is when stale records were originally fetched.
	CachedAt time.Time
}

// NewSnapshot assembles a snapshot from per-module data and analysis
// results. The maps are copied.
func NewSnapshot(seq uint64, fetchedAt time.Time, source string, data map[model.Module]ModuleData, results map[model.Module]analysis.Result) *Snapshot {
	s := &Snapshot{
		Seq:       seq,
		FetchedAt: fetchedAt,
		Source:    source,
		records:   make(map[model.Module][]model.Record, len(data)),
		index:     make(map[model.Module]map[string]int, len(data)),
		results:   make(map[model.Module]analysis.Result, len(results)),
		stale:     make(map[model.Module]bool),
		errs:      make(map[model.Module]error),
		cachedAt:  make(map[model.Module]time.Time),
	}
	h := sha256.New()
	for _, m := range model.Modules {
		d, ok := data[m]
		if !ok {
			continue
		}
		s.records[m] = d.Records
		idx := make(map[string]int, len(d.Records))
		for i := range d.Records {
			idx[d.Records[i].ID] = i
		}
		s.index[m] = idx
		if d.Stale {
			s.stale[m] = true
			s.cachedAt[m] = d.CachedAt
		}
		if d.Err != nil {
			s.errs[m] = d.Err
		}
		h.Write([]byte(m))
		h.Write([]byte(analysis.ComputeDataHash(d.Records)))
	}
	for m, r := range results {
		s.results[m] = r
	}
	s.Hash = hex.EncodeToString(h.Sum(nil))
	return s
}

// Records returns the collection of module in snapshot order.
func (s *Snapshot) Records(m model.Module) []model.Record {
	if s == nil {
		return nil
	}
	return s.records[m]
}

// Lookup finds a record by ID within module.
func (s *Snapshot) Lookup(m model.Module, id string) (model.Record, bool) {
	if s == nil {
		return model.Record{}, false
	}
	i, ok := s.index[m][id]
	if !ok {
		return model.Record{}, false
	}
	return s.records[m][i], true
}

// Analysis returns the derived KPIs and insights of module.
func (s *Snapshot) Analysis(m model.Module) analysis.Result {
	if s == nil {
		return analysis.Result{Module: m}
	}
	return s.results[m]
}

// Alerts returns the governance alert records.
func (s *Snapshot) Alerts() []model.Record {
	var out []model.Record
	for _, r := range s.Records(model.ModuleGovernance) {
		if r.Kind == model.KindAlert {
			out = append(out, r)
		}
	}
	return out
}

// IsStale reports whether module is served from last-known data.
func (s *Snapshot) IsStale(m model.Module) bool {
	return s != nil && s.stale[m]
}

// AnyStale reports whether any module is stale.
func (s *Snapshot) AnyStale() bool {
	return s != nil && len(s.stale) > 0
}

// StaleModules lists stale modules in display order.
func (s *Snapshot) StaleModules() []model.Module {
	if s == nil {
		return nil
	}
	var out []model.Module
	for _, m := range model.Modules {
		if s.stale[m] {
			out = append(out, m)
		}
	}
	return out
}

// CachedAt returns when the stale data of module was fetched.
func (s *Snapshot) CachedAt(m model.Module) time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.cachedAt[m]
}

// Err returns the fetch error of module, if any.
func (s *Snapshot) Err(m model.Module) error {
	if s == nil {
		return nil
	}
	return s.errs[m]
}

// Errors returns a copy of the per-module fetch errors.
func (s *Snapshot) Errors() map[model.Module]error {
	out := make(map[model.Module]error)
	if s == nil {
		return out
	}
	for m, err := range s.errs {
		out[m] = err
	}
	return out
}

// Total returns the number of records across modules.
func (s *Snapshot) Total() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, recs := range s.records {
		n += len(recs)
	}
	return n
}
