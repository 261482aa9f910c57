//go:build ignore

// generate_testdata.go writes sample data directories for `bmo --source-dir`
// and for manual load testing of the windowed lists.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	testdata/sample/small/<module>.json  (50 records per module)
//	testdata/sample/large/<module>.json  (10000 records per module)
package main

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/testutil"
)

type datasetSpec struct {
	name string
	size int
}

var datasets = []datasetSpec{
	{"small", 50},
	{"large", 10000},
}

func main() {
	for _, ds := range datasets {
		dir := filepath.Join("testdata", "sample", ds.name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("Generating %s dataset (%d records per module)...\n", ds.name, ds.size)

		cfg := testutil.DefaultConfig()
		cfg.Seed = int64(ds.size) // reproducible per size
		byModule := testutil.New(cfg).AllModules(ds.size)

		for _, m := range model.Modules {
			recs, ok := byModule[m]
			if !ok {
				continue
			}
			data, err := json.MarshalIndent(recs, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode %s: %v\n", m, err)
				os.Exit(1)
			}
			path := filepath.Join(dir, string(m)+".json")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("  Written %s (%d records, %d bytes)\n", path, len(recs), len(data))
		}
	}
	fmt.Println("\nDone! Try: bmo --source-dir testdata/sample/small")
}
