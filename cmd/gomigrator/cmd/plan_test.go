package cmd

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/types"
)

func TestPlanCommandStructure(t *testing.T) {
	assert.Equal(t, "plan", planCmd.Use)
	assert.NotEmpty(t, planCmd.Short)
	assert.NotNil(t, planCmd.Flags().Lookup("types"))
}

func TestPlanGraph(t *testing.T) {
	g, err := planGraph(nil)
	require.NoError(t, err)
	assert.Equal(t, len(types.HistoryTypes), g.NodeCount())

	g, err = planGraph([]types.EntityType{types.ProcessInstance, types.Variable})
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())

	_, err = planGraph([]types.EntityType{types.RuntimeProcessInstance})
	assert.Error(t, err)
}

func TestRenderPlan_Default(t *testing.T) {
	buf := captureOutput(t)

	g, err := planGraph(nil)
	require.NoError(t, err)
	require.NoError(t, renderPlan(g, config.DefaultConfig()))

	output := buf.String()
	assert.Contains(t, output, "Migration Plan")
	assert.Contains(t, output, "Stage 5")
	assert.NotContains(t, output, "Stage 6")
	assert.Contains(t, output, "Page Size:       500")
	assert.Contains(t, output, "[1] process_definition | reads: ACT_RE_PROCDEF")
	assert.Contains(t, output, "process_definition → process_instance FK: PROC_DEF_ID_")
	assert.Contains(t, output, "flow_node → variable FK: ACT_INST_ID_ (optional)")

	// Parents are listed before their children.
	pd := strings.Index(output, "] process_definition |")
	pi := strings.Index(output, "] process_instance |")
	v := strings.Index(output, "] variable |")
	assert.True(t, pd < pi && pi < v, "unexpected order:\n%s", output)
}

func TestRenderPlan_NoDependencies(t *testing.T) {
	buf := captureOutput(t)

	g, err := planGraph([]types.EntityType{types.DecisionRequirementsDefinition})
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Migration.DisabledInterceptors = []string{"tenant"}
	require.NoError(t, renderPlan(g, cfg))

	output := buf.String()
	assert.Contains(t, output, "(none)")
	assert.Contains(t, output, "Disabled Interceptors")
	assert.NotContains(t, output, "Stage 2")
}

func TestStageDiagram_BoxesAreAligned(t *testing.T) {
	diagram := stageDiagram([][]types.EntityType{
		{types.ProcessDefinition, types.DecisionRequirementsDefinition},
		{types.ProcessInstance},
	})

	boxes := 0
	width := 0
	for _, line := range strings.Split(diagram, "\n") {
		if strings.HasPrefix(line, " ") {
			continue
		}
		if strings.HasPrefix(line, "┌") {
			boxes++
			width = runewidth.StringWidth(line)
			continue
		}
		assert.Equal(t, width, runewidth.StringWidth(line), "misaligned line %q", line)
	}

	assert.Equal(t, 2, boxes)
	assert.Contains(t, diagram, "│ Stage 1")
	assert.Contains(t, diagram, "│ decision_requirements_definition │")
	assert.Contains(t, diagram, "▼")
}

func TestPrintSideBySide(t *testing.T) {
	buf := captureOutput(t)

	printSideBySide("ab\nabcd", []string{"x", "", "z"}, 2)

	assert.Equal(t, "ab    x\nabcd\n      z\n", buf.String())
}
