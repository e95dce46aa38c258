package routing

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// ExprEngine evaluates routing conditions with expr-lang/expr, the
// default engine (spec §4.5: a small total boolean/compare/existence
// language over `results` and `context`). Generalizes the original
// Python orchestrator's closed set of named predicates
// (all_success/any_success/all_failure/any_failure) into ordinary
// function calls any condition expression can combine with comparisons
// and dotted-path lookups.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine constructs an empty, ready-to-use ExprEngine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: map[string]*vm.Program{}}
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Evaluate(ctx context.Context, expression string, scope Scope) (bool, error) {
	if expression == "" {
		return false, schema.NewError(schema.ErrCodeRouting, "empty routing condition")
	}

	env := buildExprEnv(scope)
	prg, err := e.getOrCompile(expression, env)
	if err != nil {
		return false, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q failed: %s", expression, err.Error()).WithCause(err)
	}

	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q did not evaluate to a boolean", expression)
	}
	return b, nil
}

func (e *ExprEngine) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q does not compile: %s", expression, err.Error()).WithCause(err)
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildExprEnv exposes `results`, `context`, and the named predicate
// helpers the original orchestrator hardcoded as the only choices.
func buildExprEnv(scope Scope) map[string]any {
	env := scope.asEnv()
	env["all_success"] = func() bool { return allSuccess(scope.Results) }
	env["any_success"] = func() bool { return anySuccess(scope.Results) }
	env["all_failure"] = func() bool { return allFailure(scope.Results) }
	env["any_failure"] = func() bool { return anyFailure(scope.Results) }
	return env
}

func taskSuccess(result any) (bool, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return false, false
	}
	success, ok := m["success"].(bool)
	return success, ok
}

func allSuccess(results map[string]any) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		success, ok := taskSuccess(r)
		if !ok || !success {
			return false
		}
	}
	return true
}

func anySuccess(results map[string]any) bool {
	for _, r := range results {
		if success, ok := taskSuccess(r); ok && success {
			return true
		}
	}
	return false
}

func allFailure(results map[string]any) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		success, ok := taskSuccess(r)
		if !ok || success {
			return false
		}
	}
	return true
}

func anyFailure(results map[string]any) bool {
	for _, r := range results {
		if success, ok := taskSuccess(r); ok && !success {
			return true
		}
	}
	return false
}
