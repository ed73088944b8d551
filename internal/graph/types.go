// Package graph provides the entity type dependency graph used to order
// migration pipelines.
package graph

import (
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Node represents an entity type in the dependency graph.
type Node struct {
	Type types.EntityType
}

// Edge represents a dependency relationship between entity types.
type Edge struct {
	From types.EntityType // Parent (must be migrated first)
	To   types.EntityType // Child
}

// EdgeMeta contains metadata about an edge relationship.
type EdgeMeta struct {
	ForeignKey string // legacy column on the child that references the parent
	Optional   bool   // the reference may be NULL on the child
}

// Graph represents the dependency structure between entity types.
// Nodes keep their insertion order so that every traversal is deterministic.
type Graph struct {
	nodes        *orderedmap.OrderedMap[types.EntityType, *Node]
	children     map[types.EntityType][]types.EntityType
	parents      map[types.EntityType][]types.EntityType
	edgeMetadata map[Edge]*EdgeMeta
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:        orderedmap.NewOrderedMap[types.EntityType, *Node](),
		children:     make(map[types.EntityType][]types.EntityType),
		parents:      make(map[types.EntityType][]types.EntityType),
		edgeMetadata: make(map[Edge]*EdgeMeta),
	}
}

// AddNode adds an entity type to the graph. Adding an existing type is a no-op.
func (g *Graph) AddNode(t types.EntityType) {
	if _, ok := g.nodes.Get(t); ok {
		return
	}
	g.nodes.Set(t, &Node{Type: t})
}

// AddEdge adds a parent -> child relationship, creating missing nodes.
func (g *Graph) AddEdge(parent, child types.EntityType) {
	g.AddEdgeWithMeta(parent, child, EdgeMeta{})
}

// AddEdgeWithMeta adds an edge with metadata about the relationship.
// Duplicate edges are ignored.
func (g *Graph) AddEdgeWithMeta(parent, child types.EntityType, meta EdgeMeta) {
	g.AddNode(parent)
	g.AddNode(child)

	edge := Edge{From: parent, To: child}
	if _, exists := g.edgeMetadata[edge]; exists {
		return
	}

	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	m := meta
	g.edgeMetadata[edge] = &m
}

// GetChildren returns all direct children of an entity type.
func (g *Graph) GetChildren(parent types.EntityType) []types.EntityType {
	return g.children[parent]
}

// GetParents returns all direct parents of an entity type.
func (g *Graph) GetParents(child types.EntityType) []types.EntityType {
	return g.parents[child]
}

// GetEdgeMeta returns metadata for an edge, or nil if not found.
func (g *Graph) GetEdgeMeta(parent, child types.EntityType) *EdgeMeta {
	return g.edgeMetadata[Edge{From: parent, To: child}]
}

// HasNode returns true if the graph contains the entity type.
func (g *Graph) HasNode(t types.EntityType) bool {
	_, exists := g.nodes.Get(t)
	return exists
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return g.nodes.Len()
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edgeMetadata)
}

// AllNodes returns the entity types in insertion order.
func (g *Graph) AllNodes() []types.EntityType {
	nodes := make([]types.EntityType, 0, g.nodes.Len())
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		nodes = append(nodes, el.Key)
	}
	return nodes
}

// AllEdges returns all edges, ordered by parent insertion order.
func (g *Graph) AllEdges() []Edge {
	var edges []Edge
	for _, parent := range g.AllNodes() {
		for _, child := range g.children[parent] {
			edges = append(edges, Edge{From: parent, To: child})
		}
	}
	return edges
}

// InDegree returns the number of incoming edges (parents) for a node.
func (g *Graph) InDegree(t types.EntityType) int {
	return len(g.parents[t])
}

// Descendants returns every entity type reachable from t, in insertion order.
func (g *Graph) Descendants(t types.EntityType) []types.EntityType {
	seen := make(map[types.EntityType]bool)
	var walk func(types.EntityType)
	walk = func(n types.EntityType) {
		for _, child := range g.children[n] {
			if !seen[child] {
				seen[child] = true
				walk(child)
			}
		}
	}
	walk(t)

	var result []types.EntityType
	for _, n := range g.AllNodes() {
		if seen[n] {
			result = append(result, n)
		}
	}
	return result
}

// Subgraph returns a graph restricted to the selected entity types. Edges to
// unselected types are dropped; their pipelines are assumed complete.
func (g *Graph) Subgraph(selected []types.EntityType) *Graph {
	keep := make(map[types.EntityType]bool, len(selected))
	for _, t := range selected {
		keep[t] = true
	}

	sub := NewGraph()
	for _, t := range g.AllNodes() {
		if keep[t] {
			sub.AddNode(t)
		}
	}
	for _, e := range g.AllEdges() {
		if keep[e.From] && keep[e.To] {
			sub.AddEdgeWithMeta(e.From, e.To, *g.edgeMetadata[e])
		}
	}
	return sub
}
