// Package temporal schedules overlap-threshold sweeps as workflow
// activities: one independent search per threshold, then a single pooled
// selection pass.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/j-berg/metabonet/internal/search"
	"github.com/j-berg/metabonet/internal/selector"
)

// SweepInput holds the workflow parameters. Paths point at the node,
// edge, and measurement files; the search and selection parameters come
// from the worker's configuration.
type SweepInput struct {
	NodesPath        string
	EdgesPath        string
	MeasurementsPath string

	// Overlaps lists the thresholds to sweep; empty falls back to the
	// worker configuration.
	Overlaps []float64

	// Run labels the sweep for persistence and reporting.
	Run string
}

// SweepOutput holds the workflow result.
type SweepOutput struct {
	Selected        []selector.Selected
	Candidates      int
	BudgetExhausted bool
	Errors          []string
}

// SweepWorkflow runs one SearchActivity per configured overlap threshold
// in parallel, pools the accepted candidates, and ranks them with a
// single SelectActivity.
func SweepWorkflow(ctx workflow.Context, input SweepInput) (*SweepOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	thetas := input.Overlaps
	if len(thetas) == 0 {
		if err := workflow.ExecuteActivity(ctx, ThresholdsActivity).Get(ctx, &thetas); err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
	}

	var futures []workflow.Future
	for _, theta := range thetas {
		futures = append(futures, workflow.ExecuteActivity(ctx, SearchActivity, input, theta))
	}

	out := &SweepOutput{}
	seen := make(map[string]bool)
	var pooled []search.Module
	for i, f := range futures {
		var res SearchResult
		if err := f.Get(ctx, &res); err != nil {
			return nil, fmt.Errorf("search at threshold %v: %w", thetas[i], err)
		}
		out.Candidates += res.Candidates
		if res.BudgetExhausted {
			out.BudgetExhausted = true
		}
		out.Errors = append(out.Errors, res.Errors...)
		for _, m := range res.Modules {
			if !seen[m.Key()] {
				seen[m.Key()] = true
				pooled = append(pooled, m)
			}
		}
	}

	var sel SelectResult
	if err := workflow.ExecuteActivity(ctx, SelectActivity, input, pooled).Get(ctx, &sel); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out.Selected = sel.Selected
	return out, nil
}
