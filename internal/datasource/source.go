// Package datasource is the Fetch Layer: it retrieves raw module payloads
// from the BMO REST backend or from a directory of JSON exports, normalizes
// them through pkg/loader, and keeps a last-known copy of every module in a
// local SQLite cache.
//
// Callers never see transport types; every source returns []model.Record.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// ErrNotFound is returned when a source has no data for a module.
var ErrNotFound = errors.New("module data not found")

// Source fetches the records of one module.
type Source interface {
	Name() string
	Fetch(ctx context.Context, module model.Module) ([]model.Record, error)
}

// Endpoint is one backend resource feeding a module.
type Endpoint struct {
	Path string
	Kind model.Kind
}

// DefaultEndpoints maps every module to its backend resources. Governance
// merges RACI rows and alerts into one collection.
var DefaultEndpoints = map[model.Module][]Endpoint{
	model.ModuleDashboard:     {{Path: "dashboard/stats", Kind: model.KindStat}},
	model.ModuleEvaluations:   {{Path: "evaluations", Kind: model.KindEvaluation}},
	model.ModuleGovernance:    {{Path: "governance/raci", Kind: model.KindRACI}, {Path: "governance/alerts", Kind: model.KindAlert}},
	model.ModuleTickets:       {{Path: "tickets", Kind: model.KindTicket}},
	model.ModuleRecouvrements: {{Path: "recouvrements/creances", Kind: model.KindCreance}},
}

// ResolveEndpoints overlays path overrides on DefaultEndpoints. An override
// at position i keeps the kind of the default endpoint at i; extra paths use
// the module's default kind.
func ResolveEndpoints(overrides map[model.Module][]string) map[model.Module][]Endpoint {
	out := make(map[model.Module][]Endpoint, len(DefaultEndpoints))
	for m, eps := range DefaultEndpoints {
		out[m] = append([]Endpoint(nil), eps...)
	}
	for m, paths := range overrides {
		defaults := DefaultEndpoints[m]
		eps := make([]Endpoint, 0, len(paths))
		for i, p := range paths {
			kind := model.DefaultKind(m)
			if i < len(defaults) {
				kind = defaults[i].Kind
			}
			eps = append(eps, Endpoint{Path: p, Kind: kind})
		}
		out[m] = eps
	}
	return out
}

// StatusError is returned by HTTPSource for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Body)
}

// Open builds the source described by cfg: HTTP when a URL is configured,
// otherwise the file source over cfg.Dir.
func Open(cfg config.Config, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoints := ResolveEndpoints(cfg.ModuleEndpoints())
	switch {
	case cfg.Source.URL != "":
		return NewHTTPSource(cfg.Source.URL,
			WithEndpoints(endpoints),
			WithTimeout(cfg.Source.Timeout),
			WithRateLimit(cfg.Source.RatePerSecond, cfg.Source.Burst),
			WithToken(cfg.Source.Token),
			WithLogger(logger),
		)
	case cfg.Source.Dir != "":
		return NewFileSource(cfg.Source.Dir, endpoints, logger), nil
	default:
		return nil, errors.New("no data source configured: set source.url or source.dir")
	}
}

// mergeUnique appends records from next whose IDs are not yet present,
// preserving order. Used when several endpoints feed one module.
func mergeUnique(dst []model.Record, seen map[string]bool, next []model.Record) []model.Record {
	for _, r := range next {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		dst = append(dst, r)
	}
	return dst
}
