package search

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/score"
)

// SeedError records a failure for a single seed run. A failing seed never
// aborts its siblings.
type SeedError struct {
	Seed string
	Err  error
}

func (e SeedError) Error() string {
	return fmt.Sprintf("seed %s: %v", e.Seed, e.Err)
}

// Result is the outcome of one search run: the pooled, ranked module set
// plus bookkeeping about the exploration.
type Result struct {
	// Modules is the pooled acceptance across all overlap thresholds,
	// sorted by score descending with node-id tie-break.
	Modules []Module
	// PerThreshold maps each configured overlap threshold to the
	// modules accepted at that threshold.
	PerThreshold map[float64][]Module
	// Candidates counts distinct locally optimal modules found.
	Candidates int
	// BudgetExhausted marks a best-effort result: at least one seed
	// run hit its iteration budget before reaching a local optimum.
	BudgetExhausted bool
	// SeedErrors collects per-seed failures, sorted by seed id.
	SeedErrors []SeedError
}

// Run explores the network from every configured seed, pools locally
// optimal candidates, and applies the overlap-capped greedy acceptance at
// each configured threshold. Seed runs execute on a worker pool; given
// identical inputs and Config.Seed the result is identical across runs.
func Run(ctx context.Context, net *network.Network, table *score.Table, cfg Config) (*Result, error) {
	seeds := cfg.Seeds
	if len(seeds) == 0 {
		filter := cfg.SeedFilter
		if filter == nil {
			filter = func(n *network.Node) bool { return n.Type == network.Metabolite }
		}
		for _, id := range net.Nodes() {
			node, _ := net.Node(id)
			if filter(node) {
				seeds = append(seeds, id)
			}
		}
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed nodes selected")
	}

	overlaps := cfg.Overlaps
	if len(overlaps) == 0 {
		overlaps = []float64{0.5}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	r := &runner{net: net, table: table, cfg: cfg}

	type task struct {
		seed    string
		restart int
	}
	type outcome struct {
		seed      string
		module    Module
		exhausted bool
		err       error
	}

	tasks := make(chan task)
	outcomes := make(chan outcome, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				m, exhausted, err := r.searchSeed(ctx, t.seed, t.restart)
				outcomes <- outcome{seed: t.seed, module: m, exhausted: exhausted, err: err}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, seed := range seeds {
			for restart := 0; restart <= cfg.Restarts; restart++ {
				select {
				case tasks <- task{seed: seed, restart: restart}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	res := &Result{PerThreshold: make(map[float64][]Module)}
	var candidates []Module
	for o := range outcomes {
		if o.err != nil {
			if ctx.Err() != nil {
				continue
			}
			res.SeedErrors = append(res.SeedErrors, SeedError{Seed: o.seed, Err: o.err})
			continue
		}
		if o.exhausted {
			res.BudgetExhausted = true
		}
		candidates = append(candidates, o.module)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(res.SeedErrors, func(i, j int) bool { return res.SeedErrors[i].Seed < res.SeedErrors[j].Seed })

	candidates = dedupe(sortModules(candidates))
	res.Candidates = len(candidates)

	pooled := make(map[string]Module)
	var pooledOrder []Module
	for _, theta := range overlaps {
		accepted := AcceptGreedy(candidates, cfg.TargetModules, theta)
		res.PerThreshold[theta] = accepted
		for _, m := range accepted {
			if _, ok := pooled[m.Key()]; !ok {
				pooled[m.Key()] = m
				pooledOrder = append(pooledOrder, m)
			}
		}
	}
	res.Modules = sortModules(pooledOrder)
	return res, nil
}

// AcceptGreedy walks candidates in rank order, accepting each whose
// overlap ratio with every already accepted module stays at or below
// theta, until k modules are accepted. candidates must already be sorted.
func AcceptGreedy(candidates []Module, k int, theta float64) []Module {
	var accepted []Module
	for _, c := range candidates {
		if k > 0 && len(accepted) >= k {
			break
		}
		ok := true
		for _, a := range accepted {
			if Overlap(c, a) > theta {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// sortModules orders by score descending, breaking ties on the canonical
// node-set key and then the seed so output is deterministic even when
// several seeds converge to the same local optimum.
func sortModules(mods []Module) []Module {
	sort.Slice(mods, func(i, j int) bool {
		if mods[i].Score != mods[j].Score {
			return mods[i].Score > mods[j].Score
		}
		if a, b := mods[i].Key(), mods[j].Key(); a != b {
			return a < b
		}
		return mods[i].Seed < mods[j].Seed
	})
	return mods
}

// dedupe drops candidates with identical node sets, keeping the first in
// rank order.
func dedupe(mods []Module) []Module {
	seen := make(map[string]bool, len(mods))
	out := mods[:0]
	for _, m := range mods {
		key := m.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}
