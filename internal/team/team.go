// Package team implements the Team component (C5): a bounded sequence
// of agent tasks run via the Agent Runtime, with per-task retry and a
// routing-rule evaluation that selects the next team (spec §4.5).
// Grounded on the teacher's internal/engine/error_handler.go retry/
// fallback pattern, narrowed to Team's single execute(context) → TeamResult
// contract.
package team

import (
	"context"
	"log/slog"
	"time"

	"github.com/c4h-run/refactorctl/internal/agentruntime"
	"github.com/c4h-run/refactorctl/internal/config"
	"github.com/c4h-run/refactorctl/internal/lineage"
	"github.com/c4h-run/refactorctl/internal/llmadapter"
	"github.com/c4h-run/refactorctl/internal/routing"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Team runs one TeamDefinition's tasks in sequence and resolves the next
// team via routing.Resolver.
type Team struct {
	def           schema.TeamDefinition
	registry      *agentruntime.Registry
	adapter       *llmadapter.Adapter
	recorder      *lineage.Recorder
	configs       *config.Store
	resolver      *routing.Resolver
	routingEngine string
	logger        *slog.Logger

	baseRuntime *agentruntime.Runtime
}

// New constructs a Team over def. routingEngine selects which routing.Engine
// evaluates this team's routing rules ("" uses the resolver's default).
func New(def schema.TeamDefinition, registry *agentruntime.Registry, adapter *llmadapter.Adapter,
	recorder *lineage.Recorder, configs *config.Store, resolver *routing.Resolver, routingEngine string, logger *slog.Logger) *Team {
	if logger == nil {
		logger = slog.Default()
	}
	return &Team{
		def: def, registry: registry, adapter: adapter, recorder: recorder,
		configs: configs, resolver: resolver, routingEngine: routingEngine, logger: logger,
		baseRuntime: agentruntime.NewRuntime(registry, configs, adapter, recorder),
	}
}

// Execute runs this team's tasks against taskCtx and returns the
// aggregated TeamResult plus the context carried forward to whichever
// team next runs.
func (t *Team) Execute(ctx context.Context, taskCtx schema.Context) (schema.TeamResult, schema.Context) {
	results := make([]schema.AgentResult, 0, len(t.def.Tasks))
	resultsByTask := map[string]any{}
	current := taskCtx
	stopped := false

	for _, task := range t.def.Tasks {
		if stopped {
			break
		}

		result, nextCtx := t.runTaskWithRetry(ctx, task, current)
		current = nextCtx
		results = append(results, result)
		resultsByTask[task.TaskName] = map[string]any{
			"success": result.Success,
			"data":    result.Data,
			"error":   result.Error,
		}

		if !result.Success && t.def.StopsOnFailure() {
			stopped = true
		}
	}

	current = applyInputShape(t.def.InputShape, current)

	scope := routing.Scope{Results: resultsByTask, Context: buildContextScope(current)}
	nextTeam, err := t.resolver.Resolve(ctx, t.routingEngine, t.def.Routing, scope)
	if err != nil {
		t.logger.Warn("team.routing_resolution_failed", slog.String("team_id", t.def.TeamID), slog.Any("error", err))
		nextTeam = t.def.Routing.Default
	}

	return schema.TeamResult{
		Success:   allSucceeded(results),
		Data:      current.InputData,
		NextTeam:  nextTeam,
		Tasks:     results,
		InputData: current.InputData,
	}, current
}

// runTaskWithRetry invokes task.AgentKind via the Agent Runtime, retrying
// on success=false up to task.MaxRetries times with RetryDelaySeconds
// between attempts. Each retry is a fresh invocation against an unchanged
// taskCtx; the recorder's own lastID tracking parent-links each retry's
// lineage event to the prior attempt's (spec §4.5).
func (t *Team) runTaskWithRetry(ctx context.Context, task schema.TaskSpec, taskCtx schema.Context) (schema.AgentResult, schema.Context) {
	rt := t.runtimeFor(task.ConfigOverlay)

	var result schema.AgentResult
	for attempt := 0; attempt <= task.MaxRetries; attempt++ {
		processed, err := rt.Process(ctx, task.AgentKind, taskCtx)
		if err != nil {
			result = schema.AgentResult{Success: false, Error: err.Error()}
		} else {
			result = processed
		}

		if result.Success || attempt == task.MaxRetries {
			break
		}

		t.logger.Warn("team.task_retrying", slog.String("task_name", task.TaskName),
			slog.Int("attempt", attempt+1), slog.String("error", result.Error))

		if task.RetryDelaySeconds > 0 {
			select {
			case <-ctx.Done():
				return result, taskCtx
			case <-time.After(time.Duration(task.RetryDelaySeconds) * time.Second):
			}
		}
	}

	merged := mergeStringMaps(taskCtx.InputData, result.Data)
	return result, taskCtx.WithInputData(merged)
}

// runtimeFor returns the team's base Runtime, or a one-off Runtime built
// over a per-task config overlay (spec §4.1's highest-precedence layer)
// when the task declares one.
func (t *Team) runtimeFor(overlay schema.Tree) *agentruntime.Runtime {
	if len(overlay) == 0 {
		return t.baseRuntime
	}
	return agentruntime.NewRuntime(t.registry, t.configs.WithTaskOverlay(overlay), t.adapter, t.recorder)
}

func allSucceeded(results []schema.AgentResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

func mergeStringMaps(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// applyInputShape projects a team's merged output into the named,
// legacy-shaped fields c4h_services' discovery/solution/coder teams hand
// to each other (input_data.discovery_data/.intent/.project), so a team
// can opt into that handoff shape by config rather than the orchestrator
// special-casing team ids. A nil shape leaves the generic merge untouched.
func applyInputShape(shape *schema.InputShape, c schema.Context) schema.Context {
	if shape == nil {
		return c
	}
	shaped := make(map[string]any, len(c.InputData)+3)
	for k, v := range c.InputData {
		shaped[k] = v
	}
	if shape.DiscoveryData {
		shaped["discovery_data"] = c.InputData
	}
	if shape.Intent {
		shaped["intent"] = map[string]any{
			"description":  c.Intent.Description,
			"target_files": c.Intent.TargetFiles,
		}
	}
	if shape.Project {
		shaped["project"] = c.ProjectPath
	}
	return c.WithInputData(shaped)
}

func buildContextScope(c schema.Context) map[string]any {
	return map[string]any{
		"workflow_run_id": c.WorkflowRunID,
		"project_path":    c.ProjectPath,
		"intent": map[string]any{
			"description":  c.Intent.Description,
			"target_files": c.Intent.TargetFiles,
		},
		"input_data": c.InputData,
		"step":       c.Step,
	}
}
