package datasource

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// DefaultConcurrency bounds FetchAll when the caller passes no limit.
const DefaultConcurrency = 4

// Result is the outcome of FetchAll. A module appears in exactly one of
// Records and Errors.
type Result struct {
	Records   map[model.Module][]model.Record
	Errors    map[model.Module]error
	Durations map[model.Module]time.Duration
}

// OK reports whether every module succeeded.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// FetchAll fetches modules concurrently with at most limit requests in
// flight. A failing module never cancels its siblings; only ctx does.
func FetchAll(ctx context.Context, src Source, modules []model.Module, limit int) Result {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	res := Result{
		Records:   make(map[model.Module][]model.Record, len(modules)),
		Errors:    make(map[model.Module]error),
		Durations: make(map[model.Module]time.Duration, len(modules)),
	}
	var mu sync.Mutex

	// Module errors are collected, never returned to the group.
	var g errgroup.Group
	g.SetLimit(limit)
	for _, m := range modules {
		g.Go(func() error {
			start := time.Now()
			recs, err := src.Fetch(ctx, m)
			d := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			res.Durations[m] = d
			if err != nil {
				res.Errors[m] = err
				return nil
			}
			res.Records[m] = recs
			return nil
		})
	}
	_ = g.Wait()
	return res
}
