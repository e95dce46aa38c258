package agentruntime

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4h-run/refactorctl/internal/config"
	"github.com/c4h-run/refactorctl/internal/lineage"
	"github.com/c4h-run/refactorctl/internal/llmadapter"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

type scriptedAgent struct {
	kind       string
	parseErr   error
	parsedData map[string]any
}

func (a *scriptedAgent) Kind() string             { return a.kind }
func (a *scriptedAgent) SystemTemplate() string    { return "system: ${{context.intent.description}}" }
func (a *scriptedAgent) UserTemplate() string      { return "user: ${{context.project_path}}" }
func (a *scriptedAgent) ParseReply(raw string) (map[string]any, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.parsedData, nil
}

type scriptedProvider struct {
	content string
	err     error
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Complete(ctx context.Context, model, system string, messages []llmadapter.Message, params llmadapter.Params) (llmadapter.Completion, error) {
	if p.err != nil {
		return llmadapter.Completion{}, p.err
	}
	return llmadapter.Completion{Content: p.content, FinishReason: llmadapter.FinishStop}, nil
}

func newTestRuntime(t *testing.T, agent Agent, provider llmadapter.Provider) (*Runtime, *lineage.Recorder) {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(agent))

	tree := schema.Tree{
		"llm_config": schema.Tree{
			"default_provider": "scripted",
			"providers":        schema.Tree{"scripted": schema.Tree{"default_model": "m1", "default_temperature": 0.1}},
			"agents":           schema.Tree{agent.Kind(): schema.Tree{}},
		},
	}
	store := config.New(tree)
	adapter := llmadapter.NewAdapter(map[string]llmadapter.Provider{"scripted": provider},
		llmadapter.ContinuationConfig{}, llmadapter.DefaultRetryConfig(), nil, slog.Default())
	recorder, _ := newTestRecorder(t)

	return NewRuntime(registry, store, adapter, recorder), recorder
}

func TestRuntime_Process_SuccessfulCompletionParsesReplyAndRecordsEvent(t *testing.T) {
	agent := &scriptedAgent{kind: "solution_designer", parsedData: map[string]any{"changes": []any{}}}
	provider := &scriptedProvider{content: `{"changes":[]}`}
	runtime, recorder := newTestRuntime(t, agent, provider)

	taskCtx := schema.Context{WorkflowRunID: "wf_1", ProjectPath: "/proj", Intent: schema.Intent{Description: "refactor"}}
	result, err := runtime.Process(context.Background(), "solution_designer", taskCtx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"changes": []any{}}, result.Data)

	events := recorder.WorkflowEvents("wf_1")
	require.Len(t, events, 1)
	assert.Equal(t, "solution_designer", events[0].AgentKind)
	assert.Equal(t, int64(1), events[0].Step)
	assert.Empty(t, events[0].ParentID)
}

func TestRuntime_Process_AdapterErrorYieldsUnsuccessfulResultNoGoError(t *testing.T) {
	agent := &scriptedAgent{kind: "solution_designer"}
	provider := &scriptedProvider{err: schema.NewError(schema.ErrCodeLLMPermanent, "provider rejected request")}
	runtime, recorder := newTestRuntime(t, agent, provider)

	taskCtx := schema.Context{WorkflowRunID: "wf_2", ProjectPath: "/proj"}
	result, err := runtime.Process(context.Background(), "solution_designer", taskCtx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	events := recorder.WorkflowEvents("wf_2")
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Error)
}

func TestRuntime_Process_ParseErrorYieldsUnsuccessfulResultWithRawOutput(t *testing.T) {
	agent := &scriptedAgent{kind: "solution_designer", parseErr: schema.NewError(schema.ErrCodeParse, "bad json")}
	provider := &scriptedProvider{content: "not json"}
	runtime, _ := newTestRuntime(t, agent, provider)

	taskCtx := schema.Context{WorkflowRunID: "wf_3", ProjectPath: "/proj"}
	result, err := runtime.Process(context.Background(), "solution_designer", taskCtx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "not json", result.Data["raw_output"])
}

func TestRuntime_Process_UnknownAgentKindIsError(t *testing.T) {
	agent := &scriptedAgent{kind: "solution_designer"}
	provider := &scriptedProvider{content: "{}"}
	runtime, _ := newTestRuntime(t, agent, provider)

	_, err := runtime.Process(context.Background(), "nonexistent", schema.Context{WorkflowRunID: "wf_4"})
	assert.Error(t, err)
}

func TestRuntime_Process_DispatchesNonLLMAgentsToCollect(t *testing.T) {
	scanner := &fakeScanner{rawText: "manifest", files: map[string]string{"a.py": "x"}}
	discovery := NewDiscoveryAgent(scanner)

	registry := NewRegistry()
	require.NoError(t, registry.Register(discovery))
	recorder, _ := newTestRecorder(t)
	runtime := NewRuntime(registry, config.New(schema.Tree{}), llmadapter.NewAdapter(nil, llmadapter.ContinuationConfig{}, llmadapter.DefaultRetryConfig(), nil, slog.Default()), recorder)

	result, err := runtime.Process(context.Background(), "discovery", schema.Context{WorkflowRunID: "wf_5", ProjectPath: "/proj"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "manifest", result.Data["raw_output"])

	events := recorder.WorkflowEvents("wf_5")
	require.Len(t, events, 1)
	assert.Equal(t, "discovery", events[0].AgentKind)
}
