package agentruntime

import (
	"context"
	"time"

	"github.com/c4h-run/refactorctl/internal/config"
	"github.com/c4h-run/refactorctl/internal/lineage"
	"github.com/c4h-run/refactorctl/internal/llmadapter"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// NonLLMAgent is implemented by agent kinds whose invocation never goes
// through the LLM Adapter (Discovery: it shells directly to the project
// scanner collaborator). The Runtime dispatches to Collect instead of
// the template/LLM/parse pipeline when an agent implements this.
type NonLLMAgent interface {
	Agent
	// Collect performs the agent's side-effecting work. selfEventID is the
	// lineage event id this invocation will be recorded under, so an
	// agent that makes its own skill-level sub-calls (Coder's merge and
	// asset-write collaborators) can parent them to it.
	Collect(ctx context.Context, taskCtx schema.Context, selfEventID string) (map[string]any, error)
}

// Runtime implements process(context) → AgentResult (spec §4.4): resolve
// the agent kind, resolve its LLM parameters from the Config Store,
// format its templates against the invocation context, invoke the LLM
// Adapter, parse the structured reply, and emit a lineage event.
// Per-task retry is NOT handled here — it belongs to the Team (spec §4.5).
type Runtime struct {
	registry *Registry
	configs  *config.Store
	adapter  *llmadapter.Adapter
	recorder *lineage.Recorder
}

// NewRuntime wires the four collaborators the Agent Runtime needs.
func NewRuntime(registry *Registry, configs *config.Store, adapter *llmadapter.Adapter, recorder *lineage.Recorder) *Runtime {
	return &Runtime{registry: registry, configs: configs, adapter: adapter, recorder: recorder}
}

// Process runs one agent invocation end to end. The lineage event is
// recorded under taskCtx.WorkflowRunID, parented by the recorder's
// automatic linkage (the last event recorded for that workflow, so a
// retry attempt chains from the prior attempt's event).
func (rt *Runtime) Process(ctx context.Context, agentKind string, taskCtx schema.Context) (schema.AgentResult, error) {
	agent, err := rt.registry.Get(agentKind)
	if err != nil {
		return schema.AgentResult{}, err
	}

	if nonLLM, ok := agent.(NonLLMAgent); ok {
		return rt.processNonLLM(ctx, nonLLM, agentKind, taskCtx)
	}

	params, _, err := rt.configs.AgentView(agentKind)
	if err != nil {
		return schema.AgentResult{}, err
	}

	scope := buildScope(taskCtx)

	systemPrompt, err := Interpolate(coalesce(params.SystemTemplate, agent.SystemTemplate()), scope)
	if err != nil {
		return schema.AgentResult{}, err
	}
	userPrompt, err := Interpolate(coalesce(params.UserTemplate, agent.UserTemplate()), scope)
	if err != nil {
		return schema.AgentResult{}, err
	}

	step, parentID, executionID := rt.recorder.NextEvent(taskCtx.WorkflowRunID, agentKind)
	started := time.Now().UTC()

	completion, err := rt.adapter.Complete(ctx, params.Provider, params.Model, systemPrompt,
		[]llmadapter.Message{{Role: "user", Content: userPrompt}},
		llmadapter.Params{Temperature: params.Temperature})

	messages := schema.Messages{System: systemPrompt, User: userPrompt}
	finished := time.Now().UTC()

	if err != nil {
		result := schema.AgentResult{Success: false, Error: err.Error(), Messages: messages}
		rt.record(ctx, taskCtx.WorkflowRunID, parentID, agentKind, step, started, finished, taskCtx, nil, err.Error(), schema.Metrics{})
		return result, nil
	}

	messages.Assistant = completion.Content
	data, parseErr := agent.ParseReply(completion.Content)
	metrics := completion.Metrics

	var result schema.AgentResult
	if parseErr != nil {
		result = schema.AgentResult{
			Success: false,
			Error:   parseErr.Error(),
			Data:    map[string]any{"raw_output": completion.Content},
			Messages: messages,
			Metrics:  metrics,
		}
	} else {
		result = schema.AgentResult{Success: true, Data: data, Messages: messages, Metrics: metrics}
	}

	rt.record(ctx, taskCtx.WorkflowRunID, parentID, agentKind, step, started, finished, taskCtx, result.Data, result.Error, metrics)
	_ = executionID
	return result, nil
}

func (rt *Runtime) processNonLLM(ctx context.Context, agent NonLLMAgent, agentKind string, taskCtx schema.Context) (schema.AgentResult, error) {
	step, parentID, _ := rt.recorder.NextEvent(taskCtx.WorkflowRunID, agentKind)
	selfEventID := lineage.NewEventID()
	started := time.Now().UTC()

	data, err := agent.Collect(ctx, taskCtx, selfEventID)
	finished := time.Now().UTC()

	if err != nil {
		rt.recordWithID(ctx, selfEventID, taskCtx.WorkflowRunID, parentID, agentKind, step, started, finished, taskCtx, nil, err.Error(), schema.Metrics{})
		return schema.AgentResult{Success: false, Error: err.Error()}, nil
	}

	rt.recordWithID(ctx, selfEventID, taskCtx.WorkflowRunID, parentID, agentKind, step, started, finished, taskCtx, data, "", schema.Metrics{})
	return schema.AgentResult{Success: true, Data: data}, nil
}

func (rt *Runtime) record(ctx context.Context, workflowRunID, parentID, agentKind string, step int64, started, finished time.Time, taskCtx schema.Context, output map[string]any, errMsg string, metrics schema.Metrics) {
	rt.recordWithID(ctx, lineage.NewEventID(), workflowRunID, parentID, agentKind, step, started, finished, taskCtx, output, errMsg, metrics)
}

// recordWithID records a lineage event under a caller-chosen event id, so a
// NonLLMAgent that makes its own skill-level sub-calls (Coder's merge and
// asset-write collaborators) can parent them to its own top-level event
// before that event is itself recorded.
func (rt *Runtime) recordWithID(ctx context.Context, eventID, workflowRunID, parentID, agentKind string, step int64, started, finished time.Time, taskCtx schema.Context, output map[string]any, errMsg string, metrics schema.Metrics) {
	rt.recorder.Record(ctx, schema.LineageEvent{
		EventID:        eventID,
		WorkflowRunID:  workflowRunID,
		ParentID:       parentID,
		AgentKind:      agentKind,
		Step:           step,
		StartedAt:      started,
		FinishedAt:     finished,
		InputSnapshot:  map[string]any{"project_path": taskCtx.ProjectPath, "input_data": taskCtx.InputData},
		OutputSnapshot: output,
		Metrics:        metrics,
		Error:          errMsg,
	})
}

func buildScope(taskCtx schema.Context) map[string]any {
	return map[string]any{
		"context": map[string]any{
			"workflow_run_id": taskCtx.WorkflowRunID,
			"project_path":    taskCtx.ProjectPath,
			"intent": map[string]any{
				"description":  taskCtx.Intent.Description,
				"target_files": taskCtx.Intent.TargetFiles,
			},
			"input_data": taskCtx.InputData,
			"step":       taskCtx.Step,
		},
	}
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
