package graph

import (
	"fmt"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Dependency declares that Child records reference Parent records.
type Dependency struct {
	Parent     types.EntityType
	Child      types.EntityType
	ForeignKey string
	Optional   bool
}

// DefaultDependencies is the foreign key structure of the legacy history
// schema. Root decision instances are a self reference handled inside the
// decision instance pipeline and have no edge here.
var DefaultDependencies = []Dependency{
	{types.ProcessDefinition, types.ProcessInstance, "PROC_DEF_ID_", false},
	{types.DecisionRequirementsDefinition, types.DecisionDefinition, "DEC_REQ_ID_", true},
	{types.ProcessInstance, types.FlowNode, "PROC_INST_ID_", false},
	{types.ProcessDefinition, types.FlowNode, "PROC_DEF_ID_", false},
	{types.ProcessInstance, types.Incident, "PROC_INST_ID_", false},
	{types.ProcessDefinition, types.Incident, "PROC_DEF_ID_", false},
	{types.FlowNode, types.UserTask, "ACT_INST_ID_", false},
	{types.ProcessInstance, types.UserTask, "PROC_INST_ID_", false},
	{types.DecisionDefinition, types.DecisionInstance, "DEC_DEF_ID_", false},
	{types.ProcessDefinition, types.DecisionInstance, "PROC_DEF_ID_", true},
	{types.ProcessInstance, types.DecisionInstance, "PROC_INST_ID_", true},
	{types.FlowNode, types.DecisionInstance, "ACT_INST_ID_", true},
	{types.ProcessInstance, types.Variable, "PROC_INST_ID_", false},
	{types.FlowNode, types.Variable, "ACT_INST_ID_", true},
	{types.UserTask, types.Variable, "TASK_ID_", true},
}

// Builder constructs a dependency graph from a dependency table.
type Builder struct {
	nodes []types.EntityType
	deps  []Dependency
}

// NewBuilder creates a new graph builder. nodes fixes the node order; every
// entity type that appears in deps must be listed.
func NewBuilder(nodes []types.EntityType, deps []Dependency) *Builder {
	return &Builder{nodes: nodes, deps: deps}
}

// Build constructs and validates the dependency graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("no entity types to build a graph from")
	}

	g := NewGraph()
	for _, t := range b.nodes {
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown entity type %q", t)
		}
		g.AddNode(t)
	}

	for _, d := range b.deps {
		if d.Parent == d.Child {
			return nil, fmt.Errorf("entity type %q cannot depend on itself", d.Parent)
		}
		if !g.HasNode(d.Parent) || !g.HasNode(d.Child) {
			return nil, fmt.Errorf("dependency %s -> %s references an entity type outside the graph", d.Parent, d.Child)
		}
		g.AddEdgeWithMeta(d.Parent, d.Child, EdgeMeta{ForeignKey: d.ForeignKey, Optional: d.Optional})
	}

	// Fail fast on cycles
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	return g, nil
}

// BuildDefault builds the history graph over all history entity types.
func BuildDefault() (*Graph, error) {
	return NewBuilder(types.HistoryTypes, DefaultDependencies).Build()
}
