// Package metrics collects statistics for a full analysis run.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Millis is a duration that serializes as whole milliseconds, matching
// the _ms field names in the JSON report.
type Millis time.Duration

func (d Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

func (d *Millis) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = Millis(time.Duration(ms) * time.Millisecond)
	return nil
}

// RunMetrics summarizes one search + selection + export pass.
type RunMetrics struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Duration   Millis           `json:"duration_ms,omitempty"`
	Network    NetworkMetrics   `json:"network"`
	Search     SearchMetrics    `json:"search"`
	Selection  SelectionMetrics `json:"selection"`
	Errors     []string         `json:"errors,omitempty"`
}

type NetworkMetrics struct {
	Nodes       int `json:"nodes"`
	Edges       int `json:"edges"`
	Metabolites int `json:"metabolites"`
	Reactions   int `json:"reactions"`
	Measured    int `json:"measured"`
	Components  int `json:"components"`
}

type SearchMetrics struct {
	Seeds           int    `json:"seeds"`
	Restarts        int    `json:"restarts"`
	Thresholds      int    `json:"thresholds"`
	Candidates      int    `json:"candidates"`
	Pooled          int    `json:"pooled"`
	BudgetExhausted bool   `json:"budget_exhausted"`
	Duration        Millis `json:"duration_ms"`
}

type SelectionMetrics struct {
	Input       int `json:"input"`
	Passed      int `json:"passed"`
	PrunedNodes int `json:"pruned_nodes"`
}

// New starts tracking a run.
func New() *RunMetrics {
	return &RunMetrics{StartedAt: time.Now()}
}

// Finish stamps the end of the run.
func (m *RunMetrics) Finish(errs []string) {
	m.FinishedAt = time.Now()
	m.Duration = Millis(m.FinishedAt.Sub(m.StartedAt))
	m.Errors = errs
}

// JSON serializes the metrics.
func (m *RunMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// PrintSummary writes a human-readable report.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n=== Run Summary ===\n")
	fmt.Fprintf(w, "Network:    %d nodes (%d metabolites, %d reactions), %d edges, %d components\n",
		m.Network.Nodes, m.Network.Metabolites, m.Network.Reactions, m.Network.Edges, m.Network.Components)
	fmt.Fprintf(w, "Measured:   %d nodes with composite scores\n", m.Network.Measured)
	fmt.Fprintf(w, "Search:     %d seeds x %d restarts x %d thresholds -> %d candidates, %d pooled\n",
		m.Search.Seeds, m.Search.Restarts+1, m.Search.Thresholds, m.Search.Candidates, m.Search.Pooled)
	if m.Search.BudgetExhausted {
		fmt.Fprintf(w, "            iteration budget exhausted; best-effort result\n")
	}
	fmt.Fprintf(w, "Selection:  %d candidates -> %d modules, %d context nodes pruned\n",
		m.Selection.Input, m.Selection.Passed, m.Selection.PrunedNodes)
	fmt.Fprintf(w, "Duration:   %v\n", time.Duration(m.Duration).Round(time.Millisecond))
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "Errors:     %d\n", len(m.Errors))
		for _, e := range m.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}
