package datasource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/pkg/loader"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// FileSource reads module payloads from a directory. A module is read from
// <module>.json(l) when present; otherwise each endpoint is read from a file
// named after its path with slashes replaced by underscores, e.g.
// governance_alerts.json.
type FileSource struct {
	dir       string
	endpoints map[model.Module][]Endpoint
	logger    *zap.Logger
}

// NewFileSource creates a file source over dir.
func NewFileSource(dir string, endpoints map[model.Module][]Endpoint, logger *zap.Logger) *FileSource {
	if endpoints == nil {
		endpoints = DefaultEndpoints
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{dir: dir, endpoints: endpoints, logger: logger}
}

// Name implements Source.
func (s *FileSource) Name() string { return "dir:" + s.dir }

// Dir returns the watched directory.
func (s *FileSource) Dir() string { return s.dir }

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, module model.Module) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eps, ok := s.endpoints[module]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", module, model.ErrUnknownModule)
	}
	defer metrics.Timer(metrics.Fetch)()

	if path, err := loader.FindModuleFile(s.dir, string(module)); err == nil {
		return s.load(path, module, "")
	}

	var records []model.Record
	seen := make(map[string]bool)
	found := false
	for _, ep := range eps {
		path, err := loader.FindModuleFile(s.dir, fileBase(ep.Path))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs, err := s.load(path, module, ep.Kind)
		if err != nil {
			return nil, err
		}
		found = true
		records = mergeUnique(records, seen, recs)
	}
	if !found {
		return nil, fmt.Errorf("%s in %s: %w", module, s.dir, ErrNotFound)
	}
	return records, nil
}

func (s *FileSource) load(path string, module model.Module, kind model.Kind) ([]model.Record, error) {
	warn := func(msg string) {
		s.logger.Debug("normalize warning", zap.String("file", path), zap.String("msg", msg))
	}
	recs, err := loader.LoadFile(path, module, loader.ParseOptions{Kind: kind, WarningHandler: warn})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func fileBase(path string) string {
	return strings.ReplaceAll(strings.Trim(filepath.ToSlash(path), "/"), "/", "_")
}
