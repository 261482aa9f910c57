package loader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// DataDirEnvVar overrides the directory searched by FindModuleFile callers.
const DataDirEnvVar = "BMO_DATA_DIR"

// DefaultMaxBufferSize is the default buffer size for JSONL lines (10MB).
const DefaultMaxBufferSize = 1024 * 1024 * 10

// ErrNotJSON is returned when a payload is neither JSON nor JSONL.
var ErrNotJSON = errors.New("payload is not JSON")

// ParseOptions configures decoding.
type ParseOptions struct {
	// WarningHandler is called with warning messages (malformed lines,
	// dropped records). If nil, warnings are discarded.
	WarningHandler func(string)

	// BufferSize sets the maximum JSONL line size. Longer lines are skipped
	// with a warning. If 0, uses DefaultMaxBufferSize.
	BufferSize int

	// Kind forces the record kind. When empty, the kind comes from the
	// payload envelope or the module default.
	Kind model.Kind
}

func (o ParseOptions) warn() func(string) {
	if o.WarningHandler != nil {
		return o.WarningHandler
	}
	return func(string) {}
}

// envelopeKeys lists the array fields recognized in object payloads, in the
// order their contents are appended to the collection.
var envelopeKeys = []struct {
	key  string
	kind model.Kind
}{
	{"data", ""},
	{"items", ""},
	{"results", ""},
	{"records", ""},
	{"raci", model.KindRACI},
	{"activities", model.KindRACI},
	{"alerts", model.KindAlert},
	{"tickets", model.KindTicket},
	{"evaluations", model.KindEvaluation},
	{"creances", model.KindCreance},
}

// Decode normalizes a JSON array, an envelope object, or JSONL into records.
func Decode(data []byte, module model.Module) ([]model.Record, error) {
	return DecodeWithOptions(data, module, ParseOptions{})
}

// DecodeWithOptions is Decode with custom options.
func DecodeWithOptions(data []byte, module model.Module, opts ParseOptions) ([]model.Record, error) {
	data = bytes.TrimSpace(stripBOM(data))
	if len(data) == 0 {
		return nil, nil
	}
	warn := opts.warn()

	switch data[0] {
	case '[':
		var raws []any
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decoding %s array: %w", module, err)
		}
		return collect(module, opts, [][]any{raws}, []model.Kind{opts.Kind}), nil
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			// More than one object: treat as JSONL.
			return ParseJSONL(bytes.NewReader(data), module, opts)
		}
		return decodeObject(obj, module, opts, warn), nil
	default:
		return nil, fmt.Errorf("decoding %s: %w", module, ErrNotJSON)
	}
}

func decodeObject(obj map[string]any, module model.Module, opts ParseOptions, warn func(string)) []model.Record {
	var groups [][]any
	var kinds []model.Kind
	for _, ek := range envelopeKeys {
		arr, ok := obj[ek.key].([]any)
		if !ok {
			continue
		}
		kind := opts.Kind
		if kind == "" {
			kind = ek.kind
		}
		groups = append(groups, arr)
		kinds = append(kinds, kind)
	}
	if len(groups) > 0 {
		return collect(module, opts, groups, kinds)
	}

	if firstString(obj, idKeys...) != "" {
		return collect(module, opts, [][]any{{obj}}, []model.Kind{opts.Kind})
	}

	// A bare stats object: one stat record per numeric field.
	stats := statRecords(obj, module)
	if len(stats) == 0 {
		warn(fmt.Sprintf("%s: object payload has no records", module))
	}
	return stats
}

func collect(module model.Module, opts ParseOptions, groups [][]any, kinds []model.Kind) []model.Record {
	warn := opts.warn()
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	records := make([]model.Record, 0, total)
	seen := make(map[string]bool, total)

	for gi, group := range groups {
		for i, item := range group {
			raw, ok := item.(map[string]any)
			if !ok {
				warn(fmt.Sprintf("%s: skipping item %d: not an object", module, i))
				continue
			}
			rec, ok := Normalize(raw, module, kinds[gi])
			if !ok {
				warn(fmt.Sprintf("%s: skipping item %d: missing identifier", module, i))
				continue
			}
			if seen[rec.ID] {
				warn(fmt.Sprintf("%s: skipping duplicate id %q", module, rec.ID))
				continue
			}
			seen[rec.ID] = true
			records = append(records, rec)
		}
	}
	return records
}

// ParseJSONL parses one JSON object per line. Malformed or oversized lines
// are skipped with a warning.
func ParseJSONL(r io.Reader, module model.Module, opts ParseOptions) ([]model.Record, error) {
	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)
	warn := opts.warn()

	var records []model.Record
	seen := make(map[string]bool)
	lineNum := 0
	for {
		lineNum++
		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading %s stream at line %d: %w", module, lineNum, err)
		}

		if isPrefix {
			warn(fmt.Sprintf("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity))
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return nil, fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}

		if lineNum == 1 {
			line = stripBOM(line)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		raw := getRaw()
		if err := json.Unmarshal(line, &raw); err != nil {
			putRaw(raw)
			warn(fmt.Sprintf("skipping malformed JSON on line %d: %v", lineNum, err))
			continue
		}
		rec, ok := Normalize(raw, module, opts.Kind)
		putRaw(raw)
		if !ok {
			warn(fmt.Sprintf("skipping line %d: missing identifier", lineNum))
			continue
		}
		if seen[rec.ID] {
			warn(fmt.Sprintf("skipping line %d: duplicate id %q", lineNum, rec.ID))
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}
	return records, nil
}

// LoadFile reads and decodes a .json or .jsonl file.
func LoadFile(path string, module model.Module, opts ParseOptions) ([]model.Record, error) {
	if strings.HasSuffix(path, ".jsonl") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ParseJSONL(f, module, opts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodeWithOptions(data, module, opts)
}

// FindModuleFile locates the data file for base (e.g. "tickets") in dir.
// Prefers base.json over base.jsonl, skips empty files, and ignores backups.
func FindModuleFile(dir, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read data directory: %w", err)
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.Contains(name, ".backup") || strings.Contains(name, ".orig") {
			continue
		}
		present[name] = true
	}

	for _, name := range []string{base + ".json", base + ".jsonl"} {
		if !present[name] {
			continue
		}
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return path, nil
		}
	}
	return "", fmt.Errorf("no data file for %q in %s: %w", base, dir, os.ErrNotExist)
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}
