// Package selector filters and ranks candidate modules into biologically
// interpretable clusters: bounded reaction counts, measured coverage,
// bidirectional change, combined significance, and context-aware pruning
// of weak members.
package selector

import (
	"fmt"
	"sort"

	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/score"
	"github.com/j-berg/metabonet/internal/search"
)

// Config holds the selection rules. Zero values are not meaningful;
// callers should start from Default.
type Config struct {
	// MinReactions and MaxReactions bound the reaction-node count.
	MinReactions int
	MaxReactions int
	// MinCoverage is the minimum fraction of metabolite members with a
	// measurement in at least one study.
	MinCoverage float64
	// Significance is the module-level combined p-value cutoff, and the
	// per-node cutoff used when deciding context membership.
	Significance float64
	// ContextP is the p-value cutoff under which a non-essential,
	// non-significant metabolite is still retained as context.
	ContextP float64
	// SizeAdjust mirrors the search's size-adjustment flag so modules
	// re-scored after pruning stay comparable to unpruned ones.
	SizeAdjust bool
	// MaxDepth and RegionalScoring mirror the search's settings so the
	// re-score uses the same regional window around each module's seed.
	MaxDepth        int
	RegionalScoring bool
}

// Default returns the selection rules of the reference protocol.
func Default() Config {
	return Config{
		MinReactions: 1,
		MaxReactions: 3,
		MinCoverage:  0.5,
		Significance: 0.05,
		ContextP:     0.25,
	}
}

// Validate rejects inconsistent rule settings.
func (c Config) Validate() error {
	if c.MinReactions < 0 || c.MaxReactions < c.MinReactions {
		return fmt.Errorf("reaction bounds [%d, %d] inverted or negative", c.MinReactions, c.MaxReactions)
	}
	if c.MinCoverage < 0 || c.MinCoverage > 1 {
		return fmt.Errorf("minimum coverage %v outside [0, 1]", c.MinCoverage)
	}
	if c.Significance <= 0 || c.Significance > 1 {
		return fmt.Errorf("significance cutoff %v outside (0, 1]", c.Significance)
	}
	if c.ContextP <= 0 || c.ContextP > 1 {
		return fmt.Errorf("context-inclusion cutoff %v outside (0, 1]", c.ContextP)
	}
	if c.RegionalScoring && c.MaxDepth < 1 {
		return fmt.Errorf("regional scoring needs a depth of at least 1, got %d", c.MaxDepth)
	}
	return nil
}

// Selected is a module that passed all required rules, after context
// pruning, with its coverage fraction and pruned-node count.
type Selected struct {
	search.Module
	Coverage float64 `json:"coverage"`
	Pruned   int     `json:"pruned"`
}

// Apply runs the rule chain over candidate modules and returns survivors
// sorted by combined score descending. Rules apply in order: size,
// coverage, directionality, significance, then per-node context pruning.
func Apply(net *network.Network, table *score.Table, modules []search.Module, cfg Config) ([]Selected, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var out []Selected
	for _, m := range modules {
		if m.Reactions < cfg.MinReactions || m.Reactions > cfg.MaxReactions {
			continue
		}
		if coverage(net, table, m.Nodes) < cfg.MinCoverage {
			continue
		}
		if !bidirectional(net, table, m.Nodes) {
			continue
		}
		if m.PValue >= cfg.Significance {
			continue
		}

		var region map[string]bool
		if cfg.RegionalScoring {
			var err error
			region, err = search.Region(net, m.Seed, cfg.MaxDepth)
			if err != nil {
				return nil, fmt.Errorf("module seed %s: %w", m.Seed, err)
			}
		}

		kept, pruned := pruneContext(net, table, m.Nodes, cfg)
		final := search.NewModule(net, table, m.Seed, kept, cfg.SizeAdjust, region)
		out = append(out, Selected{
			Module:   final,
			Coverage: coverage(net, table, kept),
			Pruned:   pruned,
		})
	}
	return rank(out), nil
}

// coverage returns the fraction of metabolite members carrying a
// composite score. Modules without metabolites count as fully covered.
func coverage(net *network.Network, table *score.Table, nodes []string) float64 {
	metabolites, measured := 0, 0
	for _, id := range nodes {
		node, err := net.Node(id)
		if err != nil || node.Type != network.Metabolite {
			continue
		}
		metabolites++
		if _, ok := table.Lookup(id); ok {
			measured++
		}
	}
	if metabolites == 0 {
		return 1
	}
	return float64(measured) / float64(metabolites)
}

// bidirectional requires at least one accumulating and one depleting
// metabolite, the signal for real pathway activity over uniform drift.
func bidirectional(net *network.Network, table *score.Table, nodes []string) bool {
	up, down := false, false
	for _, id := range nodes {
		node, err := net.Node(id)
		if err != nil || node.Type != network.Metabolite {
			continue
		}
		c, ok := table.Lookup(id)
		if !ok {
			continue
		}
		if c.FoldLog > 0 {
			up = true
		}
		if c.FoldLog < 0 {
			down = true
		}
	}
	return up && down
}

// pruneContext removes metabolite members that are unmeasured or miss the
// significance cutoff, unless they are structurally necessary for
// connectivity or individually clear the context-inclusion cutoff.
// Removal is one node at a time in sorted order, re-checking connectivity
// after each.
func pruneContext(net *network.Network, table *score.Table, nodes []string, cfg Config) ([]string, int) {
	kept := append([]string(nil), nodes...)
	pruned := 0
	for changed := true; changed; {
		changed = false
		for _, id := range kept {
			node, err := net.Node(id)
			if err != nil || node.Type != network.Metabolite {
				continue
			}
			c, measured := table.Lookup(id)
			if measured && c.P < cfg.Significance {
				continue // carries its own weight
			}
			rest := without(kept, id)
			if len(rest) > 0 && !net.Connected(rest) {
				continue // structurally necessary
			}
			if measured && c.P < cfg.ContextP {
				continue // marginal but worth keeping as context
			}
			kept = rest
			pruned++
			changed = true
			break
		}
	}
	return kept, pruned
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids)-1)
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// rank keeps the same ordering contract as the search pool: score
// descending, canonical key tie-break.
func rank(mods []Selected) []Selected {
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
