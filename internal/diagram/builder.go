package diagram

import (
	"fmt"
	"sort"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Build constructs a DiagramModel from a workflow's team topology: teams
// keyed by team_id, and entryTeam naming the team InitializeWorkflow
// starts at. record, if non-nil, overlays each team's TeamResult onto its
// node. Grounded on the teacher's diagram.Build (virtual start/end nodes,
// level layout), narrowed from a step-level DAG to the team routing graph
// described by schema.TeamDefinition.Routing.
func Build(teams map[string]schema.TeamDefinition, entryTeam string, record *schema.WorkflowRecord) (*DiagramModel, error) {
	if len(teams) == 0 {
		return nil, fmt.Errorf("diagram: no team definitions")
	}
	if _, ok := teams[entryTeam]; !ok {
		return nil, fmt.Errorf("diagram: entry team %q not found among team definitions", entryTeam)
	}

	ids := make([]string, 0, len(teams))
	for id := range teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodeIndex := make(map[string]*Node, len(teams)+2)
	nodes := make([]*Node, 0, len(teams)+2)

	startNode := &Node{ID: "__start__", Label: "Start", Kind: NodeKindStart}
	nodes = append(nodes, startNode)
	nodeIndex["__start__"] = startNode

	for _, id := range ids {
		node := teamToNode(teams[id])
		nodes = append(nodes, node)
		nodeIndex[id] = node
	}

	endNode := &Node{ID: "__end__", Label: "End", Kind: NodeKindEnd}
	nodes = append(nodes, endNode)
	nodeIndex["__end__"] = endNode

	edges := buildEdges(teams, ids, entryTeam)

	if record != nil {
		for teamID, result := range record.TeamResults {
			if node, ok := nodeIndex[teamID]; ok {
				overlayTeamStatus(node, result)
			}
		}
	}

	return &DiagramModel{
		Title:  titleFromRecord(record, entryTeam),
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(entryTeam, edges),
	}, nil
}

// teamToNode maps a TeamDefinition to a Node. A team with routing rules
// is a branch point (NodeKindCondition); one with only a default next
// team is a straight-through action.
func teamToNode(def schema.TeamDefinition) *Node {
	node := &Node{ID: def.TeamID, Label: teamLabel(def), Kind: teamKind(def)}
	if len(def.Tasks) == 0 {
		return node
	}
	sg := &SubGraph{Label: "tasks"}
	prevID := ""
	for _, task := range def.Tasks {
		taskID := fmt.Sprintf("%s.tasks.%s", def.TeamID, task.TaskName)
		sg.Nodes = append(sg.Nodes, &Node{
			ID:    taskID,
			Label: fmt.Sprintf("%s (%s)", task.TaskName, task.AgentKind),
			Kind:  NodeKindReasoning,
		})
		if prevID != "" {
			sg.Edges = append(sg.Edges, Edge{From: prevID, To: taskID})
		}
		prevID = taskID
	}
	node.Children = append(node.Children, sg)
	return node
}

func teamKind(def schema.TeamDefinition) NodeKind {
	if len(def.Routing.Rules) > 0 {
		return NodeKindCondition
	}
	return NodeKindAction
}

func teamLabel(def schema.TeamDefinition) string {
	if def.DisplayName != "" {
		return def.DisplayName
	}
	return def.TeamID
}

// buildEdges constructs the routing graph: start → entry, each team's
// ordered rules (labeled by condition) and its default, with an edge to
// __end__ wherever a rule or default names no next team.
func buildEdges(teams map[string]schema.TeamDefinition, ids []string, entryTeam string) []Edge {
	edges := []Edge{{From: "__start__", To: entryTeam}}
	for _, id := range ids {
		def := teams[id]
		for _, rule := range def.Routing.Rules {
			to := rule.NextTeam
			if to == "" {
				to = "__end__"
			}
			edges = append(edges, Edge{From: id, To: to, Label: rule.Condition})
		}
		to := def.Routing.Default
		if to == "" {
			to = "__end__"
		}
		edges = append(edges, Edge{From: id, To: to, Label: "default"})
	}
	return edges
}

// overlayTeamStatus applies a TeamResult onto a team node.
func overlayTeamStatus(node *Node, result schema.TeamResult) {
	status := "completed"
	if !result.Success {
		status = "failed"
	}
	node.Status = &StatusOverlay{Status: status}
}

// buildLevels layers the routing graph breadth-first from entryTeam,
// wrapping the result with virtual start/end levels. Cycles in the
// routing graph (a team routing back to an earlier team) are handled by
// the seen-depth guard: a team is placed at the first depth it is
// reached at and never revisited.
func buildLevels(entryTeam string, edges []Edge) [][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.From == "__start__" || e.To == "__end__" {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	depth := map[string]int{entryTeam: 0}
	queue := []string{entryTeam}
	maxDepth := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := depth[next]; !seen {
				depth[next] = depth[cur] + 1
				if depth[next] > maxDepth {
					maxDepth = depth[next]
				}
				queue = append(queue, next)
			}
		}
	}

	byDepth := make([][]string, maxDepth+1)
	for id, d := range depth {
		byDepth[d] = append(byDepth[d], id)
	}
	for _, lvl := range byDepth {
		sort.Strings(lvl)
	}

	levels := make([][]string, 0, len(byDepth)+2)
	levels = append(levels, []string{"__start__"})
	levels = append(levels, byDepth...)
	levels = append(levels, []string{"__end__"})
	return levels
}

// titleFromRecord generates a diagram title from a workflow record, or
// falls back to naming the entry team when rendering a template without
// a concrete run.
func titleFromRecord(record *schema.WorkflowRecord, entryTeam string) string {
	if record != nil && record.WorkflowID != "" {
		return fmt.Sprintf("Workflow %s", record.WorkflowID)
	}
	return fmt.Sprintf("Workflow (entry: %s)", entryTeam)
}
