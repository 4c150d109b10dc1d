package temporal

import (
	"context"
	"fmt"

	"github.com/j-berg/metabonet/internal/config"
	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/score"
	"github.com/j-berg/metabonet/internal/search"
	"github.com/j-berg/metabonet/internal/selector"
)

// SearchResult is the serializable result of one threshold run.
type SearchResult struct {
	Modules         []search.Module
	Candidates      int
	BudgetExhausted bool
	Errors          []string
}

// SelectResult is the serializable result of the pooled selection pass.
type SelectResult struct {
	Selected []selector.Selected
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Config *config.Config
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func loadInputs(input SweepInput) (*network.Network, *score.Table, error) {
	net, err := network.LoadFiles(input.NodesPath, input.EdgesPath, input.MeasurementsPath)
	if err != nil {
		return nil, nil, err
	}
	table := score.Compute(net, deps.Config.Search.StudyWeights)
	return net, table, nil
}

// ThresholdsActivity returns the configured overlap thresholds for sweeps
// that do not name their own.
func ThresholdsActivity(ctx context.Context) ([]float64, error) {
	return deps.Config.Search.Overlaps, nil
}

// SearchActivity runs the module search at a single overlap threshold.
func SearchActivity(ctx context.Context, input SweepInput, theta float64) (SearchResult, error) {
	net, table, err := loadInputs(input)
	if err != nil {
		return SearchResult{}, err
	}

	cfg := deps.Config.SearchOptions()
	cfg.Overlaps = []float64{theta}
	res, err := search.Run(ctx, net, table, cfg)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search at threshold %v: %w", theta, err)
	}

	out := SearchResult{
		Modules:         res.Modules,
		Candidates:      res.Candidates,
		BudgetExhausted: res.BudgetExhausted,
	}
	for _, se := range res.SeedErrors {
		out.Errors = append(out.Errors, se.Error())
	}
	return out, nil
}

// SelectActivity ranks and filters the pooled candidate modules.
func SelectActivity(ctx context.Context, input SweepInput, pooled []search.Module) (SelectResult, error) {
	net, table, err := loadInputs(input)
	if err != nil {
		return SelectResult{}, err
	}
	selected, err := selector.Apply(net, table, pooled, deps.Config.SelectionOptions())
	if err != nil {
		return SelectResult{}, err
	}
	return SelectResult{Selected: selected}, nil
}
