// Package routing implements the small total expression language that
// Team routing rules are evaluated in (spec §4.5). Two engines are
// offered behind a common interface, selectable per team: expr-lang/expr
// (the default) and google/cel-go (an alternate, chosen by passing "cel" as
// team.New's routingEngine argument; no config key selects it). Grounded on the teacher's
// internal/expressions package, narrowed to the routing-condition use case.
package routing

import "context"

// Engine evaluates a routing condition expression against a Scope and
// returns a truthy/falsy result.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, scope Scope) (bool, error)
}

// Scope is what a routing condition expression sees. `results` mirrors
// the team's task results (success/error/data per task_name), `context`
// exposes the dotted-path-readable workflow context.
type Scope struct {
	Results map[string]any
	Context map[string]any
}

// asEnv flattens Scope into the plain map expr/cel expect as an
// evaluation environment.
func (s Scope) asEnv() map[string]any {
	return map[string]any{
		"results": s.Results,
		"context": s.Context,
	}
}
