// Package schema holds the data model shared across every component:
// the config tree, work orders, workflow records, team/task definitions,
// agent results and lineage events.
package schema

import "time"

// Tree is a recursive configuration value: scalar, ordered mapping, or
// ordered list. In Go this is represented as map[string]any / []any /
// string / float64 / bool / nil, exactly as produced by a YAML or JSON
// decoder. Lookup never mutates; a missing path yields "absent", which
// callers must distinguish from an explicit null (a mapping value of nil).
type Tree = map[string]any

// Intent describes the refactoring the caller wants performed.
type Intent struct {
	Description  string   `json:"description"`
	TargetFiles  []string `json:"target_files,omitempty"`
}

// Overlays are the two request-supplied configuration layers, applied on
// top of server defaults and below any per-task overlay.
type Overlays struct {
	System Tree `json:"system,omitempty"`
	App    Tree `json:"app,omitempty"`
}

// WorkOrder is the inbound request that starts a workflow.
type WorkOrder struct {
	ProjectPath string   `json:"project_path"`
	Intent      Intent   `json:"intent"`
	Overlays    Overlays `json:"overlays"`
}

// WorkflowStatus is one of exactly three values per spec.
type WorkflowStatus string

const (
	WorkflowPending WorkflowStatus = "pending"
	WorkflowSuccess WorkflowStatus = "success"
	WorkflowError   WorkflowStatus = "error"
)

// WorkflowRecord is the durable, queryable record of one workflow run.
// workflow_id is immutable after creation; mutated only by the Orchestrator
// instance that owns the run until a terminal status is stored.
type WorkflowRecord struct {
	WorkflowID    string                    `json:"workflow_id"`
	Status        WorkflowStatus            `json:"status"`
	StoragePath   string                    `json:"storage_path"`
	Error         string                    `json:"error,omitempty"`
	ExecutionPath []string                  `json:"execution_path"`
	TeamResults   map[string]TeamResult     `json:"team_results"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at,omitzero"`
}

// RoutingRule is one entry in a team's ordered routing table. Condition is
// evaluated in the routing expression language (internal/routing); the
// first rule whose condition evaluates true wins. NextTeam == "" ends the
// workflow when this rule fires.
type RoutingRule struct {
	Condition string `yaml:"condition" json:"condition"`
	NextTeam  string `yaml:"next_team" json:"next_team"`
}

// Routing is a team's routing table: an ordered rule list plus a default
// taken when no rule matches.
type Routing struct {
	Rules   []RoutingRule `yaml:"rules" json:"rules"`
	Default string        `yaml:"default" json:"default"`
}

// TaskSpec describes one agent invocation within a team.
type TaskSpec struct {
	TaskName           string `yaml:"task_name" json:"task_name"`
	AgentKind          string `yaml:"agent_kind" json:"agent_kind"`
	RequiresApproval   bool   `yaml:"requires_approval" json:"requires_approval"`
	MaxRetries         int    `yaml:"max_retries" json:"max_retries"`
	RetryDelaySeconds  int    `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
	ConfigOverlay      Tree   `yaml:"config,omitempty" json:"config,omitempty"`
}

// InputShape optionally reshapes a team's merged output data before it is
// handed to the next team's context.input_data, mirroring the
// discovery→solution / solution→coder structured handoffs of the original
// implementation without hardcoding team ids in the orchestrator.
type InputShape struct {
	DiscoveryData bool `yaml:"discovery_data" json:"discovery_data"`
	Intent        bool `yaml:"intent" json:"intent"`
	Project       bool `yaml:"project" json:"project"`
}

// TeamDefinition is config-derived and immutable for the lifetime of a
// workflow run.
type TeamDefinition struct {
	TeamID        string      `yaml:"team_id" json:"team_id"`
	DisplayName   string      `yaml:"display_name" json:"display_name"`
	Tasks         []TaskSpec  `yaml:"tasks" json:"tasks"`
	Routing       Routing     `yaml:"routing" json:"routing"`
	StopOnFailure *bool       `yaml:"stop_on_failure,omitempty" json:"stop_on_failure,omitempty"`
	InputShape    *InputShape `yaml:"input_shape,omitempty" json:"input_shape,omitempty"`
}

// StopsOnFailure reports whether this team aborts its task sequence on the
// first task failure. Defaults to true when unset, per the original
// implementation's team.py.
func (t TeamDefinition) StopsOnFailure() bool {
	if t.StopOnFailure == nil {
		return true
	}
	return *t.StopOnFailure
}

// AgentSequenceEntry records one agent dispatch for Context.AgentSequence.
type AgentSequenceEntry struct {
	AgentKind   string `json:"agent_kind"`
	ExecutionID string `json:"execution_id"`
	Step        int64  `json:"step"`
}

// Context is threaded through a workflow. It is never mutated in place:
// each stage derives a new Context from the prior one (Context.With*
// methods return a shallow copy with the named field replaced).
type Context struct {
	WorkflowRunID  string                 `json:"workflow_run_id"`
	ProjectPath    string                 `json:"project_path"`
	Intent         Intent                 `json:"intent"`
	InputData      map[string]any         `json:"input_data,omitempty"`
	AgentSequence  []AgentSequenceEntry   `json:"agent_sequence,omitempty"`
	Step           int64                  `json:"step"`
	Extra          map[string]any         `json:"extra,omitempty"`
}

// WithInputData returns a copy of c with InputData replaced.
func (c Context) WithInputData(data map[string]any) Context {
	next := c
	next.InputData = data
	return next
}

// WithAppendedSequence returns a copy of c with one more agent_sequence
// entry and Step advanced past it.
func (c Context) WithAppendedSequence(agentKind, executionID string) Context {
	next := c
	nextStep := c.Step + 1
	entry := AgentSequenceEntry{AgentKind: agentKind, ExecutionID: executionID, Step: nextStep}
	next.AgentSequence = append(append([]AgentSequenceEntry{}, c.AgentSequence...), entry)
	next.Step = nextStep
	return next
}

// Messages captures the prompt/response triple recorded for an AgentResult.
type Messages struct {
	System    string `json:"system,omitempty"`
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
}

// Metrics captures token and latency accounting for one agent invocation,
// summed across any continuation hops.
type Metrics struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	DurationMS       int64 `json:"duration_ms"`
	Continuations    int   `json:"continuations"`
}

// AgentResult is returned by every Agent Runtime invocation, successful
// or not. success=false implies Error is non-empty; success=true implies
// Data is well-formed for the agent kind that produced it.
type AgentResult struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data"`
	Error    string         `json:"error,omitempty"`
	Messages Messages       `json:"messages"`
	Metrics  Metrics        `json:"metrics"`
}

// FileChangeType enumerates the kinds of file modification Solution
// Design can request.
type FileChangeType string

const (
	FileChangeCreate FileChangeType = "create"
	FileChangeModify FileChangeType = "modify"
	FileChangeDelete FileChangeType = "delete"
)

// FileChange is a declarative record of a modification to a single file.
type FileChange struct {
	FilePath    string         `json:"file_path"`
	Type        FileChangeType `json:"type"`
	Description string         `json:"description,omitempty"`
	Content     *string        `json:"content,omitempty"`
	Diff        *string        `json:"diff,omitempty"`
}

// Validate checks the FileChange invariant: create/modify need at least
// one of Content or Diff.
func (f FileChange) Validate() error {
	if f.FilePath == "" {
		return NewError(ErrCodeParse, "file_change: file_path is required")
	}
	switch f.Type {
	case FileChangeCreate, FileChangeModify:
		if (f.Content == nil || *f.Content == "") && (f.Diff == nil || *f.Diff == "") {
			return NewErrorf(ErrCodeParse,
				"file_change %s: type %s requires content or diff", f.FilePath, f.Type)
		}
	case FileChangeDelete:
		// no content required
	default:
		return NewErrorf(ErrCodeParse, "file_change %s: unknown type %q", f.FilePath, f.Type)
	}
	return nil
}

// FileChangeResult is one Coder-applied outcome for a FileChange.
type FileChangeResult struct {
	File       string `json:"file"`
	Success    bool   `json:"success"`
	BackupPath string `json:"backup_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TeamResult aggregates one team's task execution.
type TeamResult struct {
	Success  bool                   `json:"success"`
	Data     map[string]any         `json:"data"`
	NextTeam string                 `json:"next_team,omitempty"`
	Tasks    []AgentResult          `json:"tasks"`
	InputData map[string]any        `json:"input_data,omitempty"`
}

// LineageEvent is one append-only record of an agent invocation.
// parent_id forms a forest rooted at workflow-root events; step is unique
// within (workflow_run_id, step); started_at <= finished_at always.
type LineageEvent struct {
	EventID        string         `json:"event_id"`
	WorkflowRunID  string         `json:"workflow_run_id"`
	ParentID       string         `json:"parent_id,omitempty"`
	AgentKind      string         `json:"agent_kind"`
	Step           int64          `json:"step"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	InputSnapshot  map[string]any `json:"input_snapshot,omitempty"`
	OutputSnapshot map[string]any `json:"output_snapshot,omitempty"`
	Metrics        Metrics        `json:"metrics"`
	Error          string         `json:"error,omitempty"`
}
