package diagram

// NodeKind classifies a diagram node by what it represents: a team, one
// of a team's task dispatches, or a virtual start/end marker.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
	NodeKindReasoning NodeKind = "reasoning"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindLoop      NodeKind = "loop"
	NodeKindWait      NodeKind = "wait"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents one team, or one task nested under a team.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Status   *StatusOverlay
	Children []*SubGraph // a team's task sequence
}

// SubGraph holds a team's nested task sequence.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// StatusOverlay carries a team's run-time result for a node.
type StatusOverlay struct {
	Status     string // "completed" or "failed", from TeamResult.Success
	DurationMs int64
	RetryCount int
	Error      string
}

// Edge represents a routing transition between two teams.
type Edge struct {
	From  string
	To    string
	Label string
}
