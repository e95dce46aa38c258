package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// --- Test team topology builders ---

func linearTeams() map[string]schema.TeamDefinition {
	return map[string]schema.TeamDefinition{
		"discovery_team": {
			TeamID: "discovery_team", DisplayName: "Discovery",
			Tasks:   []schema.TaskSpec{{TaskName: "scan", AgentKind: "discovery"}},
			Routing: schema.Routing{Default: "solution_team"},
		},
		"solution_team": {
			TeamID: "solution_team", DisplayName: "Solution Design",
			Tasks:   []schema.TaskSpec{{TaskName: "design", AgentKind: "solution_designer"}},
			Routing: schema.Routing{Default: "coder_team"},
		},
		"coder_team": {
			TeamID: "coder_team", DisplayName: "Coder",
			Tasks:   []schema.TaskSpec{{TaskName: "apply", AgentKind: "coder"}},
			Routing: schema.Routing{},
		},
	}
}

func branchingTeams() map[string]schema.TeamDefinition {
	return map[string]schema.TeamDefinition{
		"solution_team": {
			TeamID: "solution_team",
			Tasks:  []schema.TaskSpec{{TaskName: "design", AgentKind: "solution_designer"}},
			Routing: schema.Routing{
				Rules: []schema.RoutingRule{
					{Condition: `data.risk == "high"`, NextTeam: "review_team"},
				},
				Default: "coder_team",
			},
		},
		"review_team": {
			TeamID: "review_team",
			Tasks:  []schema.TaskSpec{{TaskName: "review", AgentKind: "coder"}},
			Routing: schema.Routing{Default: "coder_team"},
		},
		"coder_team": {
			TeamID:  "coder_team",
			Tasks:   []schema.TaskSpec{{TaskName: "apply", AgentKind: "coder"}},
			Routing: schema.Routing{},
		},
	}
}

// --- Tests ---

func TestBuildLinearTeams(t *testing.T) {
	model, err := Build(linearTeams(), "discovery_team", nil)
	require.NoError(t, err)

	assert.Contains(t, model.Title, "discovery_team")
	// 3 teams + start + end = 5.
	assert.Len(t, model.Nodes, 5)
	assert.NotEmpty(t, model.Edges)
	assert.NotEmpty(t, model.Levels)

	assert.Equal(t, []string{"__start__"}, model.Levels[0])
	assert.Equal(t, []string{"__end__"}, model.Levels[len(model.Levels)-1])

	kinds := make(map[string]NodeKind)
	for _, n := range model.Nodes {
		kinds[n.ID] = n.Kind
	}
	assert.Equal(t, NodeKindStart, kinds["__start__"])
	assert.Equal(t, NodeKindEnd, kinds["__end__"])
	assert.Equal(t, NodeKindAction, kinds["discovery_team"])
	assert.Equal(t, NodeKindAction, kinds["solution_team"])
	assert.Equal(t, NodeKindAction, kinds["coder_team"])
}

func TestBuildLinearTeamsHasTaskSubgraph(t *testing.T) {
	model, err := Build(linearTeams(), "discovery_team", nil)
	require.NoError(t, err)

	var discoveryNode *Node
	for _, n := range model.Nodes {
		if n.ID == "discovery_team" {
			discoveryNode = n
			break
		}
	}
	require.NotNil(t, discoveryNode)
	require.Len(t, discoveryNode.Children, 1)
	assert.Equal(t, "tasks", discoveryNode.Children[0].Label)
	require.Len(t, discoveryNode.Children[0].Nodes, 1)
	assert.Contains(t, discoveryNode.Children[0].Nodes[0].ID, "discovery_team.tasks.scan")
}

func TestBuildBranchingTeams(t *testing.T) {
	model, err := Build(branchingTeams(), "solution_team", nil)
	require.NoError(t, err)

	var solutionNode *Node
	for _, n := range model.Nodes {
		if n.ID == "solution_team" {
			solutionNode = n
			break
		}
	}
	require.NotNil(t, solutionNode)
	assert.Equal(t, NodeKindCondition, solutionNode.Kind, "a team with routing rules is a branch point")

	var ruleEdge, defaultEdge *Edge
	for i := range model.Edges {
		e := &model.Edges[i]
		if e.From == "solution_team" && e.To == "review_team" {
			ruleEdge = e
		}
		if e.From == "solution_team" && e.To == "coder_team" {
			defaultEdge = e
		}
	}
	require.NotNil(t, ruleEdge)
	require.NotNil(t, defaultEdge)
	assert.Equal(t, `data.risk == "high"`, ruleEdge.Label)
	assert.Equal(t, "default", defaultEdge.Label)
}

func TestBuildWithTeamResultStatusOverlay(t *testing.T) {
	record := &schema.WorkflowRecord{
		WorkflowID: "wf-1",
		TeamResults: map[string]schema.TeamResult{
			"discovery_team": {Success: true},
			"solution_team":  {Success: true},
			"coder_team":     {Success: false},
		},
	}

	model, err := Build(linearTeams(), "discovery_team", record)
	require.NoError(t, err)
	assert.Contains(t, model.Title, "wf-1")

	for _, node := range model.Nodes {
		switch node.ID {
		case "discovery_team", "solution_team":
			require.NotNil(t, node.Status)
			assert.Equal(t, "completed", node.Status.Status)
		case "coder_team":
			require.NotNil(t, node.Status)
			assert.Equal(t, "failed", node.Status.Status)
		case "__start__", "__end__":
			assert.Nil(t, node.Status)
		}
	}
}

func TestBuildNoTeams(t *testing.T) {
	_, err := Build(nil, "discovery_team", nil)
	require.Error(t, err)
}

func TestBuildUnknownEntryTeam(t *testing.T) {
	_, err := Build(linearTeams(), "nonexistent_team", nil)
	require.Error(t, err)
}
