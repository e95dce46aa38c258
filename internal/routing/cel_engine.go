package routing

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// CELEngine evaluates routing conditions with google/cel-go, an
// alternate engine a team uses when team.New is given routingEngine "cel",
// for conditions that need CEL's stricter type-checking over expr's looser one.
// Grounded on the teacher's internal/expressions/cel.go.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine builds a sandboxed CEL environment exposing `results` and
// `context` as the only two top-level variables routing conditions see.
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("results", mapType),
		cel.Variable("context", mapType),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRouting, "create CEL environment: %s", err.Error()).WithCause(err)
	}
	return &CELEngine{env: env, cache: map[string]cel.Program{}}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Evaluate(ctx context.Context, expression string, scope Scope) (bool, error) {
	if expression == "" {
		return false, schema.NewError(schema.ErrCodeRouting, "empty routing condition")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(scope.asEnv())
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q failed: %s", expression, err.Error()).WithCause(err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q did not evaluate to a boolean", expression)
	}
	return b, nil
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
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

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q does not compile: %s", expression, issues.Err().Error()).WithCause(issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRouting, "routing condition %q program error: %s", expression, err.Error()).WithCause(err)
	}

	e.cache[expression] = prg
	return prg, nil
}
