// Package score converts per-study measurements into composite node
// significance scores using a Stouffer-style combination of signed
// z-scores.
package score

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/j-berg/metabonet/internal/network"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// pClamp keeps one-sided p-values away from 0 and 1 so the normal
// quantile stays finite.
const pClamp = 1e-15

// Composite is a node's combined significance across studies. Z is signed:
// positive for accumulation, negative for depletion. FoldLog is the
// weighted mean log2 fold change. Studies counts contributing studies.
type Composite struct {
	Z       float64 `json:"z"`
	P       float64 `json:"p"`
	FoldLog float64 `json:"fold_log"`
	Studies int     `json:"studies"`
}

// Table maps node ids to composite scores. Nodes without any measurement
// have no entry; Lookup's second return distinguishes a missing score from
// a legitimate zero.
type Table struct {
	scores  map[string]Composite
	studies []string
}

// Lookup returns the composite score for a node, and whether one exists.
func (t *Table) Lookup(id string) (Composite, bool) {
	c, ok := t.scores[id]
	return c, ok
}

// Studies returns the sorted set of study ids observed in the network.
func (t *Table) Studies() []string {
	return t.studies
}

// Len returns the number of scored nodes.
func (t *Table) Len() int {
	return len(t.scores)
}

// StudyZ converts one study's measurement into a signed z-score: the
// magnitude comes from the one-sided p-value, the sign from the fold
// change direction.
func StudyZ(m network.Measurement) float64 {
	p := m.PValue
	if p < pClamp {
		p = pClamp
	}
	if p > 1-pClamp {
		p = 1 - pClamp
	}
	z := stdNormal.Quantile(1 - p)
	if z < 0 {
		z = 0
	}
	if direction(m) < 0 {
		z = -z
	}
	return z
}

func direction(m network.Measurement) int {
	switch {
	case m.FoldLog < 0:
		return -1
	case m.FoldLog > 0:
		return 1
	case m.Fold != 0 && m.Fold < 1:
		return -1
	default:
		return 1
	}
}

// Combine merges weighted z-scores with variance stabilization:
// Z = sum(w_i * z_i) / sqrt(sum(w_i^2)). With equal weights this is the
// usual Stouffer sum normalized by sqrt(n).
func Combine(zs, weights []float64) float64 {
	if len(zs) == 0 {
		return 0
	}
	var sum, norm float64
	for i, z := range zs {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		sum += w * z
		norm += w * w
	}
	if norm == 0 {
		return 0
	}
	return sum / math.Sqrt(norm)
}

// PFromZ converts a combined z-score back to a one-sided p-value on its
// magnitude.
func PFromZ(z float64) float64 {
	return 1 - stdNormal.CDF(math.Abs(z))
}

// Compute builds the composite score table for every measured node.
// weights optionally assigns a study-level weight by study id; studies
// absent from the map weigh 1.
func Compute(net *network.Network, weights map[string]float64) *Table {
	t := &Table{scores: make(map[string]Composite)}
	studySet := make(map[string]bool)

	for _, id := range net.Nodes() {
		node, _ := net.Node(id)
		if len(node.Measurements) == 0 {
			continue
		}
		studies := make([]string, 0, len(node.Measurements))
		for s := range node.Measurements {
			studies = append(studies, s)
			studySet[s] = true
		}
		sort.Strings(studies)

		zs := make([]float64, len(studies))
		ws := make([]float64, len(studies))
		var foldSum, weightSum float64
		for i, s := range studies {
			m := node.Measurements[s]
			zs[i] = StudyZ(m)
			ws[i] = 1
			if w, ok := weights[s]; ok {
				ws[i] = w
			}
			foldSum += ws[i] * m.FoldLog
			weightSum += ws[i]
		}
		z := Combine(zs, ws)
		fold := 0.0
		if weightSum != 0 {
			fold = foldSum / weightSum
		}
		t.scores[id] = Composite{
			Z:       z,
			P:       PFromZ(z),
			FoldLog: fold,
			Studies: len(studies),
		}
	}

	for s := range studySet {
		t.studies = append(t.studies, s)
	}
	sort.Strings(t.studies)
	return t
}
