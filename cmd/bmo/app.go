package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/internal/datasource"
	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
)

// workerConfig builds the refresh configuration shared by the dashboard,
// the API server and the one-shot subcommands. The returned closer releases
// the cache.
func (a *app) workerConfig(prom *metrics.Prom) (refresh.Config, func(), error) {
	src, err := datasource.Open(a.cfg, a.logger)
	if err != nil {
		return refresh.Config{}, nil, err
	}

	rc := refresh.Config{
		Source:      src,
		Engine:      analysis.NewEngine(a.cfg.Policy),
		Overlap:     a.cfg.Refresh.Overlap,
		Concurrency: a.cfg.Source.Concurrency,
		Timeout:     a.cfg.Source.Timeout * 4,
		Logger:      a.logger,
		Prom:        prom,
	}
	if a.cfg.Refresh.Auto {
		rc.Interval = a.cfg.Refresh.Interval
	}

	closer := func() {}
	if a.cfg.Cache.Enabled && a.cfg.Cache.Path != "" {
		cache, err := datasource.OpenCache(a.cfg.Cache.Path)
		if err != nil {
			// Running without last-known data beats not running.
			a.logger.Warn("cache_unavailable", zap.String("path", a.cfg.Cache.Path), zap.Error(err))
		} else {
			rc.Cache = cache
			closer = func() {
				if err := cache.Close(); err != nil {
					a.logger.Warn("cache_close_failed", zap.Error(err))
				}
			}
		}
	}
	return rc, closer, nil
}

// snapshot fetches and analyzes every module once. A partial failure still
// yields a snapshot; the failed modules are reported on warn.
func (a *app) snapshot(ctx context.Context, warn io.Writer) (*refresh.Snapshot, error) {
	rc, closeCache, err := a.workerConfig(nil)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	snap, err := refresh.Once(ctx, rc)
	if snap == nil {
		if err == nil {
			err = refresh.ErrEmptySnapshot
		}
		return nil, err
	}
	if err != nil {
		var werr refresh.WorkerError
		if errors.As(err, &werr) && werr.Phase == "analyze" {
			return nil, err
		}
		a.logger.Warn("refresh_partial", zap.Error(err))
	}
	for _, m := range snap.StaleModules() {
		msg := "stale"
		if e := snap.Err(m); e != nil {
			msg = e.Error()
		}
		fmt.Fprintf(warn, "warning: %s served from last-known data (%s)\n", m, msg)
	}
	return snap, nil
}

// moduleRecords returns the records behind module; the dashboard spans
// every data module.
func moduleRecords(snap *refresh.Snapshot, m model.Module) []model.Record {
	if m != model.ModuleDashboard {
		return snap.Records(m)
	}
	var out []model.Record
	for _, dm := range model.Modules {
		if dm != model.ModuleDashboard {
			out = append(out, snap.Records(dm)...)
		}
	}
	return out
}

func parseModuleFlag(s string) (model.Module, error) {
	if s == "" {
		return model.ModuleDashboard, nil
	}
	return model.ParseModule(s)
}
