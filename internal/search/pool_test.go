package search

import (
	"context"
	"reflect"
	"testing"

	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/score"
)

// webFixture builds two reaction clusters joined through mc and md, with
// mixed significance so different seeds converge to different optima.
func webFixture(t *testing.T) (*network.Network, *score.Table) {
	t.Helper()
	meas := func(p float64) map[string]network.Measurement {
		return map[string]network.Measurement{
			"s1": {Fold: 2, FoldLog: 1, PValue: p},
		}
	}
	nodes := []network.Node{
		{ID: "ma", Type: network.Metabolite, Measurements: meas(0.001)},
		{ID: "mb", Type: network.Metabolite, Measurements: meas(0.02)},
		{ID: "mc", Type: network.Metabolite, Measurements: meas(0.5)},
		{ID: "md", Type: network.Metabolite, Measurements: meas(0.001)},
		{ID: "me", Type: network.Metabolite, Measurements: meas(0.04)},
		{ID: "mf", Type: network.Metabolite, Measurements: meas(0.001)},
		{ID: "r1", Type: network.Reaction},
		{ID: "r2", Type: network.Reaction},
		{ID: "r3", Type: network.Reaction},
	}
	edges := []network.Edge{
		{Source: "ma", Target: "r1"},
		{Source: "mb", Target: "r1"},
		{Source: "mc", Target: "r1"},
		{Source: "mc", Target: "r2"},
		{Source: "md", Target: "r2"},
		{Source: "md", Target: "r3"},
		{Source: "me", Target: "r3"},
		{Source: "mf", Target: "r3"},
	}
	net, err := network.New(nodes, edges)
	if err != nil {
		t.Fatal(err)
	}
	return net, score.Compute(net, nil)
}

func TestAcceptGreedy(t *testing.T) {
	// already in rank order
	candidates := []Module{
		{Nodes: []string{"a", "b", "c"}, Score: 5},
		{Nodes: []string{"b", "c", "d"}, Score: 4}, // overlap 2/3 with first
		{Nodes: []string{"x", "y", "z"}, Score: 3},
	}

	tests := []struct {
		name  string
		k     int
		theta float64
		want  []string // keys of accepted modules
	}{
		{"tight_threshold", 5, 0.5, []string{"a|b|c", "x|y|z"}},
		{"loose_threshold", 5, 0.7, []string{"a|b|c", "b|c|d", "x|y|z"}},
		{"k_caps_acceptance", 1, 0.7, []string{"a|b|c"}},
		{"k_zero_means_unbounded", 0, 1.0, []string{"a|b|c", "b|c|d", "x|y|z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted := AcceptGreedy(candidates, tt.k, tt.theta)
			var keys []string
			for _, m := range accepted {
				keys = append(keys, m.Key())
			}
			if !reflect.DeepEqual(keys, tt.want) {
				t.Errorf("accepted = %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestRun_OverlapPropertyPerThreshold(t *testing.T) {
	net, table := webFixture(t)
	cfg := Config{
		TargetModules: 5,
		Overlaps:      []float64{0.25, 0.75},
		MaxDepth:      2,
		Restarts:      2,
		Seed:          7,
		Workers:       4,
	}
	res, err := Run(context.Background(), net, table, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Candidates == 0 {
		t.Fatal("expected at least one candidate")
	}
	for _, theta := range cfg.Overlaps {
		accepted, ok := res.PerThreshold[theta]
		if !ok {
			t.Fatalf("missing threshold %v in PerThreshold", theta)
		}
		if len(accepted) > cfg.TargetModules {
			t.Errorf("threshold %v accepted %d > target %d", theta, len(accepted), cfg.TargetModules)
		}
		for i := range accepted {
			for j := i + 1; j < len(accepted); j++ {
				if o := Overlap(accepted[i], accepted[j]); o > theta+1e-9 {
					t.Errorf("threshold %v: modules %v and %v overlap %v",
						theta, accepted[i].Nodes, accepted[j].Nodes, o)
				}
			}
		}
	}

	seen := make(map[string]bool)
	for _, m := range res.Modules {
		if seen[m.Key()] {
			t.Errorf("pooled result contains duplicate module %v", m.Nodes)
		}
		seen[m.Key()] = true
	}
	for i := 1; i < len(res.Modules); i++ {
		if res.Modules[i].Score > res.Modules[i-1].Score {
			t.Errorf("pooled modules not sorted by score at index %d", i)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	net, table := webFixture(t)
	cfg := Config{
		TargetModules: 5,
		Overlaps:      []float64{0.25, 0.5, 0.75},
		MaxDepth:      2,
		Restarts:      3,
		Seed:          42,
		Workers:       4,
	}

	first, err := Run(context.Background(), net, table, cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Run(context.Background(), net, table, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Modules, second.Modules) {
		t.Errorf("pooled modules differ across runs:\n%v\nvs\n%v", first.Modules, second.Modules)
	}
	if !reflect.DeepEqual(first.PerThreshold, second.PerThreshold) {
		t.Error("per-threshold acceptance differs across runs")
	}
	if first.Candidates != second.Candidates {
		t.Errorf("candidate counts differ: %d vs %d", first.Candidates, second.Candidates)
	}
}

func TestRun_DefaultSeedsAreMetabolites(t *testing.T) {
	net, table := webFixture(t)
	res, err := Run(context.Background(), net, table, Config{
		TargetModules: 5,
		Overlaps:      []float64{1.0},
		MaxDepth:      1,
		Workers:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range res.Modules {
		node, err := net.Node(m.Seed)
		if err != nil {
			t.Fatalf("module seed %q not in network", m.Seed)
		}
		if node.Type != network.Metabolite {
			t.Errorf("default seed %q is a %s", m.Seed, node.Type)
		}
	}
}

func TestRun_SeedFilter(t *testing.T) {
	net, table := webFixture(t)
	res, err := Run(context.Background(), net, table, Config{
		TargetModules: 5,
		Overlaps:      []float64{1.0},
		MaxDepth:      1,
		Workers:       1,
		SeedFilter:    func(n *network.Node) bool { return n.ID == "md" },
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range res.Modules {
		if m.Seed != "md" {
			t.Errorf("filtered run produced seed %q", m.Seed)
		}
	}
}

func TestRun_NoSeeds(t *testing.T) {
	nodes := []network.Node{{ID: "r1", Type: network.Reaction}}
	net, err := network.New(nodes, nil)
	if err != nil {
		t.Fatal(err)
	}
	table := score.Compute(net, nil)
	if _, err := Run(context.Background(), net, table, Config{Overlaps: []float64{0.5}}); err == nil {
		t.Error("expected error when no seeds match")
	}
}

func TestRun_BadSeedDoesNotAbortSiblings(t *testing.T) {
	net, table := webFixture(t)
	res, err := Run(context.Background(), net, table, Config{
		TargetModules: 5,
		Overlaps:      []float64{1.0},
		MaxDepth:      1,
		Workers:       2,
		Seeds:         []string{"ma", "ghost"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.SeedErrors) != 1 || res.SeedErrors[0].Seed != "ghost" {
		t.Fatalf("SeedErrors = %v, want one error for ghost", res.SeedErrors)
	}
	if len(res.Modules) == 0 {
		t.Error("healthy seed should still yield a module")
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	net, table := webFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, net, table, Config{
		TargetModules: 5,
		Overlaps:      []float64{0.5},
		MaxDepth:      2,
		Workers:       2,
	}); err == nil {
		t.Error("expected error from canceled context")
	}
}
