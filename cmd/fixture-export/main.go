package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/replay"
	"github.com/danielpatrickdp/bimcheck/internal/source"
)

// #region main

func main() {
	dir := flag.String("dir", "", "directory of JSON element files")
	outPath := flag.String("out", "", "output fixture JSON path")
	tokens := flag.String("tokens", "", "comma-separated accepted norm code prefixes (default EN,ISO,ASTM)")
	maxBytes := flag.Int64("max-bytes", source.DefaultMaxFileBytes, "per-file size ceiling")
	flag.Parse()

	if *dir == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --dir path/to/elements --out path/to/fixture.json [--tokens EN,ISO]")
		os.Exit(2)
	}

	fixture, err := build(*dir, splitTokens(*tokens), *maxBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := writeFixture(*fixture, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

// build replays every element file in dir, in name order, and records the
// current outcome of each as its expectation.
func build(dir string, tokens []string, maxBytes int64) (*replay.Fixture, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no JSON element files in %s", dir)
	}
	sort.Strings(paths)

	fixture := &replay.Fixture{
		Description: fmt.Sprintf("Baseline export: %d element files from %s", len(paths), filepath.Base(dir)),
		NormTokens:  tokens,
	}
	for _, p := range paths {
		f := source.NewJSONFile(p, maxBytes)
		elements, err := f.Elements(context.Background())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		raw, err := json.Marshal(elements)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", p, err)
		}
		fixture.Runs = append(fixture.Runs, replay.FixtureRun{Label: f.Label(), Elements: raw})
	}

	results, _, err := replay.Replay(context.Background(), fixture)
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		fixture.Runs[i].Expected = replay.ExpectedFrom(r.Report)
	}
	return fixture, nil
}

func splitTokens(v string) []string {
	var out []string
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// #endregion extract

// #region output

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d runs)\n", outPath, len(data), len(fixture.Runs))
	return nil
}

// #endregion output
