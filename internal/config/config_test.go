package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}
	if cfg.Search.TargetModules != 10 {
		t.Errorf("target_modules = %d, want 10", cfg.Search.TargetModules)
	}
	if want := []float64{0.25, 0.50, 0.75}; !reflect.DeepEqual(cfg.Search.Overlaps, want) {
		t.Errorf("overlaps = %v, want %v", cfg.Search.Overlaps, want)
	}
	if cfg.Search.MaxDepth != 2 {
		t.Errorf("max_depth = %d, want 2", cfg.Search.MaxDepth)
	}
	if !cfg.Search.SizeAdjust || !cfg.Search.RegionalScoring {
		t.Error("size_adjust and regional_scoring should default on")
	}
	if cfg.Selection.Significance != 0.05 {
		t.Errorf("significance = %v, want 0.05", cfg.Selection.Significance)
	}
	if cfg.Temporal.TaskQueue != "metabonet-sweep" {
		t.Errorf("task_queue = %q", cfg.Temporal.TaskQueue)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("METABONET_SEARCH_MAX_DEPTH", "4")
	t.Setenv("METABONET_SELECTION_MIN_COVERAGE", "0.8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.MaxDepth != 4 {
		t.Errorf("max_depth = %d, want 4 from environment", cfg.Search.MaxDepth)
	}
	if cfg.Selection.MinCoverage != 0.8 {
		t.Errorf("min_coverage = %v, want 0.8 from environment", cfg.Selection.MinCoverage)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
search:
  target_modules: 12
  overlaps: [0.5]
  seed: 7
selection:
  min_coverage: 0.4
store:
  enabled: true
  uri: bolt://localhost:7687
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.TargetModules != 12 {
		t.Errorf("target_modules = %d, want 12", cfg.Search.TargetModules)
	}
	if want := []float64{0.5}; !reflect.DeepEqual(cfg.Search.Overlaps, want) {
		t.Errorf("overlaps = %v, want %v", cfg.Search.Overlaps, want)
	}
	if cfg.Search.Seed != 7 {
		t.Errorf("seed = %d, want 7", cfg.Search.Seed)
	}
	if cfg.Selection.MinCoverage != 0.4 {
		t.Errorf("min_coverage = %v, want 0.4", cfg.Selection.MinCoverage)
	}
	if !cfg.Store.Enabled || cfg.Store.URI != "bolt://localhost:7687" {
		t.Errorf("store = %+v", cfg.Store)
	}
	// file values merge over defaults
	if cfg.Search.MaxDepth != 2 {
		t.Errorf("max_depth = %d, want default 2", cfg.Search.MaxDepth)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func validConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantParam string // empty means valid
	}{
		{"defaults", func(c *Config) {}, ""},
		{"target_too_low", func(c *Config) { c.Search.TargetModules = 4 }, "search.target_modules"},
		{"target_too_high", func(c *Config) { c.Search.TargetModules = 26 }, "search.target_modules"},
		{"no_overlaps", func(c *Config) { c.Search.Overlaps = nil }, "search.overlaps"},
		{"overlap_zero", func(c *Config) { c.Search.Overlaps = []float64{0} }, "search.overlaps"},
		{"overlap_above_one", func(c *Config) { c.Search.Overlaps = []float64{1.2} }, "search.overlaps"},
		{"overlap_boundary_one", func(c *Config) { c.Search.Overlaps = []float64{1} }, ""},
		{"zero_depth", func(c *Config) { c.Search.MaxDepth = 0 }, "search.max_depth"},
		{"negative_restarts", func(c *Config) { c.Search.Restarts = -1 }, "search.restarts"},
		{"negative_budget", func(c *Config) { c.Search.IterationBudget = -1 }, "search.iteration_budget"},
		{"bad_study_weight", func(c *Config) { c.Search.StudyWeights = map[string]float64{"s1": 0} }, "search.study_weights"},
		{"negative_min_reactions", func(c *Config) { c.Selection.MinReactions = -1 }, "selection.min_reactions"},
		{"inverted_reaction_bounds", func(c *Config) { c.Selection.MaxReactions = 0 }, "selection.max_reactions"},
		{"coverage_above_one", func(c *Config) { c.Selection.MinCoverage = 1.5 }, "selection.min_coverage"},
		{"zero_significance", func(c *Config) { c.Selection.Significance = 0 }, "selection.significance"},
		{"zero_context_p", func(c *Config) { c.Selection.ContextP = 0 }, "selection.context_p"},
		{"store_without_uri", func(c *Config) { c.Store.Enabled = true; c.Store.URI = "" }, "store.uri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantParam == "" {
				if err != nil {
					t.Errorf("expected valid, got %v", err)
				}
				return
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *config.Error for %s, got %v", tt.wantParam, err)
			}
			if cerr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", cerr.Param, tt.wantParam)
			}
			if !strings.Contains(err.Error(), tt.wantParam) {
				t.Errorf("error %q does not name the parameter", err)
			}
		})
	}
}

func TestSearchOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Search.MaxDepth = 3
	cfg.Search.Seed = 99

	opts := cfg.SearchOptions()
	if opts.MaxDepth != 3 || opts.Seed != 99 {
		t.Errorf("options = %+v", opts)
	}
	if opts.TargetModules != cfg.Search.TargetModules {
		t.Errorf("TargetModules = %d, want %d", opts.TargetModules, cfg.Search.TargetModules)
	}
	if !reflect.DeepEqual(opts.Overlaps, cfg.Search.Overlaps) {
		t.Errorf("Overlaps = %v", opts.Overlaps)
	}
}

func TestSelectionOptions_CarriesSizeAdjust(t *testing.T) {
	cfg := validConfig()
	cfg.Search.SizeAdjust = false
	if opts := cfg.SelectionOptions(); opts.SizeAdjust {
		t.Error("SelectionOptions should mirror search.size_adjust")
	}
	cfg.Search.SizeAdjust = true
	if opts := cfg.SelectionOptions(); !opts.SizeAdjust {
		t.Error("SelectionOptions should mirror search.size_adjust")
	}
}

func TestSelectionOptions_CarriesRegionalWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Search.MaxDepth = 3
	cfg.Search.RegionalScoring = true
	opts := cfg.SelectionOptions()
	if opts.MaxDepth != 3 || !opts.RegionalScoring {
		t.Errorf("SelectionOptions = depth %d, regional %v; want the search's window",
			opts.MaxDepth, opts.RegionalScoring)
	}
}
