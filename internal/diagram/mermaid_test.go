package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

func TestRenderMermaidLinear(t *testing.T) {
	model, err := Build(linearTeams(), "discovery_team", nil)
	require.NoError(t, err)

	output := RenderMermaid(model)

	// Must start with graph TD.
	assert.Contains(t, output, "graph TD")

	// Action-kind team nodes use square brackets.
	assert.Contains(t, output, "discovery_team[")
	assert.Contains(t, output, "solution_team[")
	assert.Contains(t, output, "coder_team[")

	// Start/end use double parens (circle).
	assert.Contains(t, output, "__start__((")
	assert.Contains(t, output, "__end__((")

	// Edges present.
	assert.Contains(t, output, "-->")

	// Class definitions.
	assert.Contains(t, output, "classDef completed")
	assert.Contains(t, output, "classDef failed")
	assert.Contains(t, output, "classDef running")
}

func TestRenderMermaidBranching(t *testing.T) {
	model, err := Build(branchingTeams(), "solution_team", nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "graph TD")

	// A team with routing rules uses the diamond shape.
	assert.Contains(t, output, "solution_team{")
}

func TestRenderMermaidTaskSubgraph(t *testing.T) {
	model, err := Build(linearTeams(), "discovery_team", nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "subgraph")
	assert.Contains(t, output, "end")
}

func TestRenderMermaidWithStatus(t *testing.T) {
	record := &schema.WorkflowRecord{
		TeamResults: map[string]schema.TeamResult{
			"discovery_team": {Success: true},
			"solution_team":  {Success: false},
		},
	}

	model, err := Build(linearTeams(), "discovery_team", record)
	require.NoError(t, err)

	output := RenderMermaid(model)

	assert.Contains(t, output, "class discovery_team completed")
	assert.Contains(t, output, "class solution_team failed")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c", mermaidSafeID("a.b.c"))
	assert.Equal(t, "my_step", mermaidSafeID("my-step"))
	assert.Equal(t, "simple", mermaidSafeID("simple"))
}
