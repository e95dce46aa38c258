package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

func successResult(taskName string) map[string]any {
	return map[string]any{taskName: map[string]any{"success": true}}
}

func failureResult(taskName string) map[string]any {
	return map[string]any{taskName: map[string]any{"success": false}}
}

func TestExprEngine_NamedPredicates(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	ok, err := e.Evaluate(ctx, "all_success()", Scope{Results: successResult("solution")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(ctx, "any_failure()", Scope{Results: failureResult("solution")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(ctx, "all_success()", Scope{Results: failureResult("solution")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprEngine_DottedPathAndComparison(t *testing.T) {
	e := NewExprEngine()
	scope := Scope{Context: map[string]any{"step": 3}}

	ok, err := e.Evaluate(context.Background(), "context.step >= 3", scope)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExprEngine_NonBooleanResultIsRoutingError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), `"not a bool"`, Scope{})
	require.Error(t, err)
	var taxErr *schema.TaxonomyError
	require.ErrorAs(t, err, &taxErr)
	assert.Equal(t, schema.ErrCodeRouting, taxErr.Code)
}

func TestCELEngine_EvaluatesOverResultsAndContext(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	ok, err := e.Evaluate(context.Background(), `results.solution.success == true`, Scope{Results: successResult("solution")})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_FirstMatchWins(t *testing.T) {
	r := NewResolver(NewExprEngine())
	routing := schema.Routing{
		Rules: []schema.RoutingRule{
			{Condition: "all_success()", NextTeam: "coder"},
			{Condition: "true", NextTeam: "fallback"},
		},
		Default: "discovery",
	}

	next, err := r.Resolve(context.Background(), "", routing, Scope{Results: successResult("solution")})
	require.NoError(t, err)
	assert.Equal(t, "coder", next)
}

func TestResolver_FallsBackToDefaultWhenNoRuleMatches(t *testing.T) {
	r := NewResolver(NewExprEngine())
	routing := schema.Routing{
		Rules:   []schema.RoutingRule{{Condition: "all_success()", NextTeam: "coder"}},
		Default: "fallback",
	}

	next, err := r.Resolve(context.Background(), "", routing, Scope{Results: failureResult("solution")})
	require.NoError(t, err)
	assert.Equal(t, "fallback", next)
}

func TestResolver_UnknownEngineIsRoutingError(t *testing.T) {
	r := NewResolver(NewExprEngine())
	_, err := r.Resolve(context.Background(), "nope", schema.Routing{}, Scope{})
	require.Error(t, err)
}

func TestResolver_RuleEvaluationErrorIsTreatedAsFalseNotFatal(t *testing.T) {
	r := NewResolver(NewExprEngine())
	routing := schema.Routing{
		Rules: []schema.RoutingRule{
			{Condition: "results.missing.nested.field", NextTeam: "unreachable"},
			{Condition: "all_success()", NextTeam: "coder"},
		},
		Default: "fallback",
	}

	next, err := r.Resolve(context.Background(), "", routing, Scope{Results: successResult("solution")})
	require.NoError(t, err)
	assert.Equal(t, "coder", next)
}
