// Package export serializes selected modules and the enriched network for
// an external visualization tool. Exporting is a pure transform: no
// filtering, no I/O beyond the bytes it returns.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/j-berg/metabonet/internal/network"
	"github.com/j-berg/metabonet/internal/score"
	"github.com/j-berg/metabonet/internal/selector"
)

// EnrichedNode is a network node annotated with its composite score and
// raw per-study values merged into one attribute record. Composite fields
// are pointers so an unmeasured node exports as explicitly missing rather
// than zero.
type EnrichedNode struct {
	ID            string                         `json:"id"`
	Name          string                         `json:"name,omitempty"`
	Type          network.NodeType               `json:"type"`
	CompositeZ    *float64                       `json:"composite_z,omitempty"`
	CompositeP    *float64                       `json:"composite_p,omitempty"`
	CompositeFold *float64                       `json:"composite_fold_log,omitempty"`
	Studies       int                            `json:"studies,omitempty"`
	Measurements  map[string]network.Measurement `json:"measurements,omitempty"`
}

// EnrichedNetwork is the whole-network export view.
type EnrichedNetwork struct {
	Nodes []EnrichedNode `json:"nodes"`
	Edges []network.Edge `json:"edges"`
}

// BuildEnriched annotates every node with its composite score, in the
// network's deterministic node order.
func BuildEnriched(net *network.Network, table *score.Table) EnrichedNetwork {
	e := EnrichedNetwork{Edges: net.Edges()}
	for _, id := range net.Nodes() {
		node, _ := net.Node(id)
		en := EnrichedNode{
			ID:           node.ID,
			Name:         node.Name,
			Type:         node.Type,
			Measurements: node.Measurements,
		}
		if c, ok := table.Lookup(id); ok {
			z, p, fold := c.Z, c.P, c.FoldLog
			en.CompositeZ = &z
			en.CompositeP = &p
			en.CompositeFold = &fold
			en.Studies = c.Studies
		}
		e.Nodes = append(e.Nodes, en)
	}
	return e
}

// JSON serializes the enriched network deterministically.
func (e EnrichedNetwork) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// ParseEnriched re-reads an enriched network export.
func ParseEnriched(data []byte) (EnrichedNetwork, error) {
	var e EnrichedNetwork
	if err := json.Unmarshal(data, &e); err != nil {
		return EnrichedNetwork{}, fmt.Errorf("parsing enriched network: %w", err)
	}
	return e, nil
}

// ModuleReport is one selected module with its induced edges and rule
// outcomes.
type ModuleReport struct {
	Rank        int            `json:"rank"`
	Seed        string         `json:"seed"`
	Nodes       []string       `json:"nodes"`
	Edges       []network.Edge `json:"edges"`
	Score       float64        `json:"score"`
	PValue      float64        `json:"p_value"`
	Reactions   int            `json:"reactions"`
	Metabolites int            `json:"metabolites"`
	Coverage    float64        `json:"coverage"`
	Pruned      int            `json:"pruned"`
}

// Modules builds the ranked module report in the selector's order.
func Modules(net *network.Network, selected []selector.Selected) []ModuleReport {
	reports := make([]ModuleReport, 0, len(selected))
	for i, s := range selected {
		reports = append(reports, ModuleReport{
			Rank:        i + 1,
			Seed:        s.Seed,
			Nodes:       s.Nodes,
			Edges:       net.InducedEdges(s.Nodes),
			Score:       s.Score,
			PValue:      s.PValue,
			Reactions:   s.Reactions,
			Metabolites: s.Metabolites,
			Coverage:    s.Coverage,
			Pruned:      s.Pruned,
		})
	}
	return reports
}

// ModulesJSON serializes the ranked module list.
func ModulesJSON(net *network.Network, selected []selector.Selected) ([]byte, error) {
	return json.MarshalIndent(Modules(net, selected), "", "  ")
}

// cytoscapeElement wraps an attribute record the way Cytoscape's JSON
// reader expects.
type cytoscapeElement struct {
	Data map[string]any `json:"data"`
}

// cytoscapeDocument is the hand-off format for the visualization tool.
type cytoscapeDocument struct {
	Network struct {
		Nodes []cytoscapeElement `json:"nodes"`
		Edges []cytoscapeElement `json:"edges"`
	} `json:"network"`
}

// Cytoscape serializes the enriched network as Cytoscape JSON, one flat
// attribute record per element.
func Cytoscape(net *network.Network, table *score.Table) ([]byte, error) {
	var doc cytoscapeDocument
	for _, id := range net.Nodes() {
		node, _ := net.Node(id)
		data := map[string]any{
			"id":   node.ID,
			"name": node.Name,
			"type": string(node.Type),
		}
		if c, ok := table.Lookup(id); ok {
			data["composite_z"] = c.Z
			data["composite_p"] = c.P
			data["composite_fold_log"] = c.FoldLog
			data["studies"] = c.Studies
		} else {
			data["measured"] = false
		}
		for study, m := range node.Measurements {
			data[study+"_fold"] = m.Fold
			data[study+"_fold_log"] = m.FoldLog
			data[study+"_p_value"] = m.PValue
		}
		doc.Network.Nodes = append(doc.Network.Nodes, cytoscapeElement{Data: data})
	}
	for _, e := range net.Edges() {
		doc.Network.Edges = append(doc.Network.Edges, cytoscapeElement{Data: map[string]any{
			"id":     e.Source + "_" + e.Target,
			"source": e.Source,
			"target": e.Target,
		}})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ModulesDOT renders the selected modules as a Graphviz document, one
// cluster per module, for quick inspection without the external tool.
func ModulesDOT(net *network.Network, selected []selector.Selected) string {
	var b strings.Builder
	b.WriteString("graph modules {\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n\n")
	for i, s := range selected {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", i+1)
		fmt.Fprintf(&b, "    label=\"module %d (score %.3f)\";\n", i+1, s.Score)
		b.WriteString("    style=dashed;\n")
		for _, id := range s.Nodes {
			node, err := net.Node(id)
			if err != nil {
				continue
			}
			shape := "ellipse"
			if node.Type == network.Reaction {
				shape = "box"
			}
			fmt.Fprintf(&b, "    %s [shape=%s];\n", dotID(id), shape)
		}
		for _, e := range net.InducedEdges(s.Nodes) {
			fmt.Fprintf(&b, "    %s -- %s;\n", dotID(e.Source), dotID(e.Target))
		}
		b.WriteString("  }\n\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// dotID quotes a node id for DOT output, escaping backslashes and
// embedded quotes.
func dotID(id string) string {
	id = strings.ReplaceAll(id, `\`, `\\`)
	id = strings.ReplaceAll(id, `"`, `\"`)
	return `"` + id + `"`
}
