package lineage

import (
	"sync"

	"github.com/itchyny/gojq"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// QueryEngine evaluates jq expressions against recorded lineage events,
// for ops/debug extraction (e.g. "which steps failed", "total tokens by
// agent_kind"). Grounded on the teacher's expressions/gojq.go wrapper,
// narrowed to the lineage query use case.
type QueryEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewQueryEngine constructs an empty, ready-to-use QueryEngine.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{cache: map[string]*gojq.Code{}}
}

// Query evaluates expression against the given workflow's recorded events,
// exposed to the expression as `.events` (an array of event objects).
func (e *QueryEngine) Query(expression string, events []schema.LineageEvent) (any, error) {
	code, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"events": eventsToJSON(events)}
	iter := code.Run(data)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeIO, "lineage query failed for %q: %s", expression, err.Error()).WithCause(err)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (e *QueryEngine) getOrCompile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeIO, "lineage query parse error in %q: %s", expression, err.Error()).WithCause(err)
	}
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeIO, "lineage query compile error in %q: %s", expression, err.Error()).WithCause(err)
	}

	e.cache[expression] = code
	return code, nil
}

// eventsToJSON converts []schema.LineageEvent into the plain
// map[string]any / []any shape gojq expects as input.
func eventsToJSON(events []schema.LineageEvent) []any {
	out := make([]any, len(events))
	for i, ev := range events {
		out[i] = map[string]any{
			"event_id":        ev.EventID,
			"workflow_run_id": ev.WorkflowRunID,
			"parent_id":       ev.ParentID,
			"agent_kind":      ev.AgentKind,
			"step":            float64(ev.Step),
			"started_at":      ev.StartedAt,
			"finished_at":     ev.FinishedAt,
			"error":           ev.Error,
			"metrics": map[string]any{
				"prompt_tokens":     float64(ev.Metrics.PromptTokens),
				"completion_tokens": float64(ev.Metrics.CompletionTokens),
				"total_tokens":      float64(ev.Metrics.TotalTokens),
				"duration_ms":       float64(ev.Metrics.DurationMS),
				"continuations":     float64(ev.Metrics.Continuations),
			},
		}
	}
	return out
}
