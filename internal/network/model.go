// Package network holds the immutable bipartite metabolic network:
// metabolite and reaction nodes joined by undirected links, with per-study
// measurements attached to nodes.
package network

import (
	"errors"
	"fmt"
	"sort"
)

// NodeType classifies graph nodes.
type NodeType string

const (
	Metabolite NodeType = "metabolite"
	Reaction   NodeType = "reaction"
)

// Measurement is one study's observation of a node: fold change, log2 fold
// change, and a one-sided p-value.
type Measurement struct {
	Fold    float64 `json:"fold"`
	FoldLog float64 `json:"fold_log"`
	PValue  float64 `json:"p_value"`
}

// Node is a metabolite or reaction. Measurements is keyed by study
// identifier and may be empty for unmeasured nodes.
type Node struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	Type         NodeType               `json:"type"`
	Measurements map[string]Measurement `json:"measurements,omitempty"`
}

// Edge is an undirected link between a metabolite and a reaction.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ErrNotFound is returned by lookups for unknown node identifiers.
var ErrNotFound = errors.New("node not found")

// StructuralError reports an edge that violates the network's structural
// rules at construction time.
type StructuralError struct {
	Edge   Edge
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("edge %s--%s: %s", e.Edge.Source, e.Edge.Target, e.Reason)
}

// Network is the bipartite graph. It is read-only after New returns.
type Network struct {
	nodes map[string]*Node
	order []string // node ids, sorted
	adj   map[string][]string
	edges []Edge
}

// New validates the node and edge lists and builds the network. It rejects
// duplicate node ids, unknown node types, edges referencing unknown ids,
// and same-type edges.
func New(nodes []Node, edges []Edge) (*Network, error) {
	n := &Network{
		nodes: make(map[string]*Node, len(nodes)),
		adj:   make(map[string][]string),
	}
	for i := range nodes {
		node := nodes[i]
		if node.ID == "" {
			return nil, fmt.Errorf("node at index %d: empty identifier", i)
		}
		if node.Type != Metabolite && node.Type != Reaction {
			return nil, fmt.Errorf("node %s: unknown type %q", node.ID, node.Type)
		}
		if _, dup := n.nodes[node.ID]; dup {
			return nil, fmt.Errorf("node %s: duplicate identifier", node.ID)
		}
		n.nodes[node.ID] = &node
		n.order = append(n.order, node.ID)
	}
	sort.Strings(n.order)

	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		src, ok := n.nodes[e.Source]
		if !ok {
			return nil, &StructuralError{Edge: e, Reason: fmt.Sprintf("unknown source node %q", e.Source)}
		}
		dst, ok := n.nodes[e.Target]
		if !ok {
			return nil, &StructuralError{Edge: e, Reason: fmt.Sprintf("unknown target node %q", e.Target)}
		}
		if src.Type == dst.Type {
			return nil, &StructuralError{Edge: e, Reason: fmt.Sprintf("connects two %s nodes", src.Type)}
		}
		key := edgeKey(e.Source, e.Target)
		if seen[key] {
			continue
		}
		seen[key] = true
		n.edges = append(n.edges, Edge{Source: e.Source, Target: e.Target})
		n.adj[e.Source] = append(n.adj[e.Source], e.Target)
		n.adj[e.Target] = append(n.adj[e.Target], e.Source)
	}

	// Sorted adjacency keeps traversal order independent of input order.
	for id := range n.adj {
		sort.Strings(n.adj[id])
	}
	sort.Slice(n.edges, func(i, j int) bool {
		a, b := edgeKey(n.edges[i].Source, n.edges[i].Target), edgeKey(n.edges[j].Source, n.edges[j].Target)
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	return n, nil
}

func edgeKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Node looks up a node by id.
func (n *Network) Node(id string) (*Node, error) {
	node, ok := n.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return node, nil
}

// Has reports whether id names a node in the network.
func (n *Network) Has(id string) bool {
	_, ok := n.nodes[id]
	return ok
}

// Degree returns the number of links incident to a node.
func (n *Network) Degree(id string) (int, error) {
	if _, ok := n.nodes[id]; !ok {
		return 0, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return len(n.adj[id]), nil
}

// Neighbors returns the direct neighbors of a node in sorted order.
func (n *Network) Neighbors(id string) []string {
	return n.adj[id]
}

// NeighborsWithin returns all nodes reachable from id in at most hops
// steps, excluding id itself, in sorted order.
func (n *Network) NeighborsWithin(id string, hops int) ([]string, error) {
	if _, ok := n.nodes[id]; !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if hops <= 0 {
		return nil, nil
	}
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var found []string
	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range n.adj[cur] {
				if !visited[nb] {
					visited[nb] = true
					found = append(found, nb)
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	sort.Strings(found)
	return found, nil
}

// Nodes returns all node ids in sorted order.
func (n *Network) Nodes() []string {
	return n.order
}

// NodesOfType returns the ids of all nodes of the given type, sorted.
func (n *Network) NodesOfType(t NodeType) []string {
	var ids []string
	for _, id := range n.order {
		if n.nodes[id].Type == t {
			ids = append(ids, id)
		}
	}
	return ids
}

// Edges returns the deduplicated edge list in deterministic order.
func (n *Network) Edges() []Edge {
	return n.edges
}

// InducedEdges returns the edges of the subgraph induced by the given node
// set, in the network's deterministic edge order.
func (n *Network) InducedEdges(ids []string) []Edge {
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	var out []Edge
	for _, e := range n.edges {
		if member[e.Source] && member[e.Target] {
			out = append(out, e)
		}
	}
	return out
}

// Connected reports whether the subgraph induced by ids is connected.
// An empty set is not connected; a singleton is.
func (n *Network) Connected(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !n.Has(id) {
			return false
		}
		member[id] = true
	}
	visited := map[string]bool{ids[0]: true}
	stack := []string{ids[0]}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range n.adj[cur] {
			if member[nb] && !visited[nb] {
				visited[nb] = true
				stack = append(stack, nb)
			}
		}
	}
	return len(visited) == len(member)
}

// Components counts connected components via union-find.
func (n *Network) Components() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, id := range n.order {
		find(id)
	}
	for _, e := range n.edges {
		union(e.Source, e.Target)
	}

	roots := make(map[string]bool)
	for _, id := range n.order {
		roots[find(id)] = true
	}
	return len(roots)
}
