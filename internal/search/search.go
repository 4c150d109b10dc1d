// Package search discovers active modules: connected subgraphs of the
// bipartite network whose member nodes maximize aggregate composite
// significance. Exploration runs one greedy local search per seed and
// restart, then merges candidates under an overlap cap.
package search

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/score"
)

// Config controls one search run.
type Config struct {
	// TargetModules is the upper bound K on modules accepted per
	// overlap threshold.
	TargetModules int
	// Overlaps lists the pairwise overlap thresholds to sweep. Results
	// from all thresholds are pooled for downstream ranking.
	Overlaps []float64
	// MaxDepth bounds boundary expansion and the regional scoring
	// window, in hops.
	MaxDepth int
	// SizeAdjust divides the aggregate score by sqrt(module size).
	SizeAdjust bool
	// RegionalScoring restricts score contributions to nodes within
	// MaxDepth hops of the originating seed.
	RegionalScoring bool
	// Restarts is the number of extra randomized passes per seed.
	Restarts int
	// Seed feeds the pseudo-random generator; identical inputs and
	// Seed produce identical output.
	Seed int64
	// IterationBudget caps improvement iterations per seed run; on
	// expiry the run returns its current best effort.
	IterationBudget int
	// Workers sizes the worker pool; <= 0 means one worker per CPU.
	Workers int
	// Seeds names the starting nodes. Empty means every node matching
	// SeedFilter, or every metabolite when no filter is set.
	Seeds []string
	// SeedFilter selects seed nodes when Seeds is empty.
	SeedFilter func(*network.Node) bool
}

// Module is a connected candidate subgraph with its aggregate score.
// Nodes is sorted; modules are never mutated after creation.
type Module struct {
	Seed        string   `json:"seed"`
	Nodes       []string `json:"nodes"`
	Score       float64  `json:"score"`
	PValue      float64  `json:"p_value"`
	Reactions   int      `json:"reactions"`
	Metabolites int      `json:"metabolites"`
}

// Key returns a canonical identity for the module's node set.
func (m Module) Key() string {
	key := ""
	for i, id := range m.Nodes {
		if i > 0 {
			key += "|"
		}
		key += id
	}
	return key
}

// NewModule builds a module over the given members, computing the
// aggregate score (sum of member composite z, optionally size-adjusted)
// and the Stouffer-combined p-value over scored members. A non-nil
// region restricts score contributions to members inside it; members
// outside still count toward size but carry no score.
func NewModule(net *network.Network, table *score.Table, seed string, members []string, sizeAdjust bool, region map[string]bool) Module {
	nodes := append([]string(nil), members...)
	sort.Strings(nodes)

	m := Module{Seed: seed, Nodes: nodes}
	var zs []float64
	var sum float64
	for _, id := range nodes {
		node, err := net.Node(id)
		if err != nil {
			continue
		}
		if node.Type == network.Reaction {
			m.Reactions++
		} else {
			m.Metabolites++
		}
		if region != nil && !region[id] {
			continue
		}
		if c, ok := table.Lookup(id); ok {
			sum += c.Z
			zs = append(zs, c.Z)
		}
	}
	m.Score = sum
	if sizeAdjust && len(nodes) > 0 {
		m.Score = sum / math.Sqrt(float64(len(nodes)))
	}
	m.PValue = score.PFromZ(score.Combine(zs, nil))
	return m
}

// Overlap returns the overlap ratio between two modules: shared node
// count over the size of the smaller module.
func Overlap(a, b Module) float64 {
	small := len(a.Nodes)
	if len(b.Nodes) < small {
		small = len(b.Nodes)
	}
	if small == 0 {
		return 0
	}
	shared := 0
	i, j := 0, 0
	for i < len(a.Nodes) && j < len(b.Nodes) {
		switch {
		case a.Nodes[i] == b.Nodes[j]:
			shared++
			i++
			j++
		case a.Nodes[i] < b.Nodes[j]:
			i++
		default:
			j++
		}
	}
	return float64(shared) / float64(small)
}

const gainEps = 1e-12

// Region builds the regional scoring window for a seed: the seed itself
// plus every node within depth hops.
func Region(net *network.Network, seed string, depth int) (map[string]bool, error) {
	within, err := net.NeighborsWithin(seed, depth)
	if err != nil {
		return nil, err
	}
	region := make(map[string]bool, len(within)+1)
	region[seed] = true
	for _, id := range within {
		region[id] = true
	}
	return region, nil
}

// runner holds the read-only inputs shared by all parallel seed runs.
type runner struct {
	net   *network.Network
	table *score.Table
	cfg   Config
}

// nodeZ returns a node's score contribution, honoring the regional
// scoring window. Missing scores contribute nothing.
func (r *runner) nodeZ(id string, region map[string]bool) float64 {
	if region != nil && !region[id] {
		return 0
	}
	c, ok := r.table.Lookup(id)
	if !ok {
		return 0
	}
	return c.Z
}

func (r *runner) aggregate(sum float64, size int) float64 {
	if r.cfg.SizeAdjust && size > 0 {
		return sum / math.Sqrt(float64(size))
	}
	return sum
}

// searchSeed runs one greedy local search from seed. restart 0 takes the
// best improving move each iteration; higher restarts accept the first
// improving move in a shuffled order, widening exploration while staying
// reproducible. Returns the locally optimal module and whether the
// iteration budget expired first.
func (r *runner) searchSeed(ctx context.Context, seed string, restart int) (Module, bool, error) {
	if _, err := r.net.Node(seed); err != nil {
		return Module{}, false, err
	}

	var region map[string]bool
	if r.cfg.RegionalScoring {
		var err error
		region, err = Region(r.net, seed, r.cfg.MaxDepth)
		if err != nil {
			return Module{}, false, err
		}
	}

	var rng *rand.Rand
	if restart > 0 {
		rng = rand.New(rand.NewSource(r.cfg.Seed ^ int64(hashID(seed)) + int64(restart)))
	}

	members := map[string]bool{seed: true}
	sum := r.nodeZ(seed, region)
	exhausted := false

	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return Module{}, false, err
		}
		if r.cfg.IterationBudget > 0 && iter >= r.cfg.IterationBudget {
			exhausted = true
			break
		}

		moves := r.moves(seed, members, region)
		if rng != nil {
			rng.Shuffle(len(moves), func(i, j int) { moves[i], moves[j] = moves[j], moves[i] })
		}

		cur := r.aggregate(sum, len(members))
		applied := false
		var best move
		bestGain := gainEps
		for _, mv := range moves {
			next := sum + mv.delta
			size := len(members) + mv.sizeDelta()
			gain := r.aggregate(next, size) - cur
			if gain <= gainEps {
				continue
			}
			if rng != nil {
				best, bestGain, applied = mv, gain, true
				break
			}
			if !applied || gain > bestGain {
				best, bestGain, applied = mv, gain, true
			}
		}
		if !applied {
			break
		}
		for _, id := range best.ids {
			if best.add {
				members[id] = true
			} else {
				delete(members, id)
			}
		}
		sum += best.delta
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return NewModule(r.net, r.table, seed, ids, r.cfg.SizeAdjust, region), exhausted, nil
}

type move struct {
	ids   []string // nodes added or removed together
	add   bool
	delta float64 // change in raw score sum
}

func (m move) sizeDelta() int {
	if m.add {
		return len(m.ids)
	}
	return -len(m.ids)
}

// moves enumerates candidate changes in deterministic order: additions
// within MaxDepth hops of the current boundary, then removals that keep
// the module connected. A candidate more than one hop out joins together
// with its BFS path back to the module, so every accepted module stays
// connected.
func (r *runner) moves(seed string, members map[string]bool, region map[string]bool) []move {
	memberIDs := make([]string, 0, len(members))
	for id := range members {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)

	// BFS outward from the whole module boundary, keeping parent links
	// so each reached node knows its path back in.
	parent := make(map[string]string)
	visited := make(map[string]bool, len(members))
	frontier := memberIDs
	for _, id := range memberIDs {
		visited[id] = true
	}
	reached := make([]string, 0)
	for depth := 0; depth < r.cfg.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range r.net.Neighbors(cur) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				parent[nb] = cur
				reached = append(reached, nb)
				next = append(next, nb)
			}
		}
		frontier = next
	}
	sort.Strings(reached)

	var out []move
	for _, id := range reached {
		path := []string{id}
		delta := r.nodeZ(id, region)
		for p := parent[id]; !members[p]; p = parent[p] {
			path = append(path, p)
			delta += r.nodeZ(p, region)
		}
		out = append(out, move{ids: path, add: true, delta: delta})
	}

	for _, id := range memberIDs {
		if id == seed || len(members) == 1 {
			continue
		}
		if !r.removable(id, memberIDs) {
			continue
		}
		out = append(out, move{ids: []string{id}, add: false, delta: -r.nodeZ(id, region)})
	}
	return out
}

// removable reports whether the module stays connected without id.
func (r *runner) removable(id string, memberIDs []string) bool {
	rest := make([]string, 0, len(memberIDs)-1)
	for _, m := range memberIDs {
		if m != id {
			rest = append(rest, m)
		}
	}
	return r.net.Connected(rest)
}

func hashID(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}
