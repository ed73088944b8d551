package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gomigrator/internal/types"
)

const (
	pd  = types.ProcessDefinition
	pi  = types.ProcessInstance
	drd = types.DecisionRequirementsDefinition
	dd  = types.DecisionDefinition
	di  = types.DecisionInstance
	inc = types.Incident
	fn  = types.FlowNode
	ut  = types.UserTask
	vr  = types.Variable
)

func TestBuildDefault(t *testing.T) {
	g, err := BuildDefault()
	require.NoError(t, err)

	assert.Equal(t, 9, g.NodeCount())
	assert.Equal(t, len(DefaultDependencies), g.EdgeCount())
	assert.Equal(t, types.HistoryTypes, g.AllNodes())

	assert.ElementsMatch(t, []types.EntityType{dd, pd, pi, fn}, g.GetParents(di))
	assert.ElementsMatch(t, []types.EntityType{pi, fn, ut}, g.GetParents(vr))
	assert.Empty(t, g.GetParents(pd))
	assert.Empty(t, g.GetParents(drd))

	meta := g.GetEdgeMeta(drd, dd)
	require.NotNil(t, meta)
	assert.Equal(t, "DEC_REQ_ID_", meta.ForeignKey)
	assert.True(t, meta.Optional)
	assert.Nil(t, g.GetEdgeMeta(dd, drd))
}

func TestTopologicalSort_Default(t *testing.T) {
	g, err := BuildDefault()
	require.NoError(t, err)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []types.EntityType{pd, drd, pi, dd, fn, inc, ut, di, vr}, order)

	position := make(map[types.EntityType]int)
	for i, typ := range order {
		position[typ] = i
	}
	for _, e := range g.AllEdges() {
		assert.Less(t, position[e.From], position[e.To], "%s must precede %s", e.From, e.To)
	}
}

func TestStages_Default(t *testing.T) {
	g, err := BuildDefault()
	require.NoError(t, err)

	stages, err := g.Stages()
	require.NoError(t, err)
	assert.Equal(t, [][]types.EntityType{
		{pd, drd},
		{pi, dd},
		{inc, fn},
		{di, ut},
		{vr},
	}, stages)
}

func TestDescendants(t *testing.T) {
	g, err := BuildDefault()
	require.NoError(t, err)

	assert.Equal(t, []types.EntityType{di, ut, vr}, g.Descendants(fn))
	assert.Equal(t, []types.EntityType{dd, di}, g.Descendants(drd))
	assert.Empty(t, g.Descendants(vr))
}

func TestSubgraph(t *testing.T) {
	g, err := BuildDefault()
	require.NoError(t, err)

	sub := g.Subgraph([]types.EntityType{vr, pi, ut})
	assert.Equal(t, []types.EntityType{pi, ut, vr}, sub.AllNodes())
	assert.Equal(t, 3, sub.EdgeCount())
	assert.ElementsMatch(t, []types.EntityType{pi, ut}, sub.GetParents(vr))
	assert.Equal(t, "TASK_ID_", sub.GetEdgeMeta(ut, vr).ForeignKey)

	order, err := sub.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []types.EntityType{pi, ut, vr}, order)
}

func TestAddEdge_IgnoresDuplicates(t *testing.T) {
	g := NewGraph()
	g.AddEdge(pd, pi)
	g.AddEdge(pd, pi)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, 1, g.InDegree(pi))
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []types.EntityType
		deps  []Dependency
		want  string
	}{
		{"no nodes", nil, nil, "no entity types"},
		{"unknown type", []types.EntityType{"job"}, nil, "unknown entity type"},
		{"self reference", []types.EntityType{pi}, []Dependency{{Parent: pi, Child: pi}}, "cannot depend on itself"},
		{"outside graph", []types.EntityType{pi}, []Dependency{{Parent: pd, Child: pi}}, "outside the graph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.nodes, tt.deps).Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuilder_Cycle(t *testing.T) {
	_, err := NewBuilder(
		[]types.EntityType{pd, pi, fn, vr},
		[]Dependency{
			{Parent: pd, Child: pi},
			{Parent: pi, Child: fn},
			{Parent: fn, Child: pi},
			{Parent: fn, Child: vr},
		},
	).Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleDetected))

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, 4, cycleErr.Info.TotalNodes)
	assert.Equal(t, 1, cycleErr.Info.ProcessedNodes)
	assert.Equal(t, []types.EntityType{pi, fn, vr}, cycleErr.Info.UnprocessedNodes)
	assert.Equal(t, []types.EntityType{pi, fn}, cycleErr.Info.CycleParticipants)
	assert.Equal(t, []types.EntityType{pi, fn, pi}, cycleErr.Info.CyclePath)

	msg := cycleErr.Error()
	assert.Contains(t, msg, "3 of 4 entity types")
	assert.Contains(t, msg, "Cycle path: process_instance -> flow_node -> process_instance")
	assert.Contains(t, msg, "Entity types blocked by cycle: variable")
}

func TestTopologicalSort_Cycle(t *testing.T) {
	g := NewGraph()
	g.AddEdge(pi, fn)
	g.AddEdge(fn, ut)
	g.AddEdge(ut, pi)

	assert.True(t, g.HasCycle())

	_, err := g.TopologicalSort()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycleDetected)

	_, err = g.Stages()
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestCycleError_NoBlockedSection(t *testing.T) {
	err := &CycleError{Info: &CycleInfo{
		TotalNodes:        2,
		UnprocessedNodes:  []types.EntityType{pi, fn},
		CycleParticipants: []types.EntityType{pi, fn},
	}}
	assert.False(t, strings.Contains(err.Error(), "blocked"))
	assert.Contains(t, err.Error(), "Entity types in cycle: process_instance, flow_node")
}
