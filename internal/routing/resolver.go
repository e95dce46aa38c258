package routing

import (
	"context"
	"log/slog"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

const defaultEngineName = "expr"

// Resolver selects the next team by evaluating a TeamDefinition's
// routing rules against scope, first-match-wins, falling back to
// routing.default when no rule matches (spec §4.5/§4.6).
type Resolver struct {
	engines map[string]Engine
	logger  *slog.Logger
}

// NewResolver registers the engines available for teams to select by name
// (team.New's routingEngine argument). NewDefaultResolver wires the standard pair.
func NewResolver(engines ...Engine) *Resolver {
	r := &Resolver{engines: map[string]Engine{}, logger: slog.Default()}
	for _, e := range engines {
		r.engines[e.Name()] = e
	}
	return r
}

// WithLogger overrides the logger used for per-rule evaluation-error
// warnings (spec §4.5: "an evaluation error treats the rule as false and
// logs a warning").
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// NewDefaultResolver wires expr-lang/expr as the primary engine and
// cel-go as the alternate, matching SPEC_FULL.md's domain stack wiring.
func NewDefaultResolver() (*Resolver, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewResolver(NewExprEngine(), celEngine), nil
}

// Resolve evaluates routing.Rules in order against scope, using
// engineName (or the default engine if empty), returning the first
// matching rule's NextTeam. If no rule matches, returns routing.Default.
// An empty result (both fields empty) means the workflow terminates.
func (r *Resolver) Resolve(ctx context.Context, engineName string, routing schema.Routing, scope Scope) (string, error) {
	if engineName == "" {
		engineName = defaultEngineName
	}
	engine, ok := r.engines[engineName]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeRouting, "unknown routing engine %q", engineName)
	}

	for _, rule := range routing.Rules {
		matched, err := engine.Evaluate(ctx, rule.Condition, scope)
		if err != nil {
			r.logger.Warn("routing.rule_evaluation_failed", slog.String("condition", rule.Condition), slog.Any("error", err))
			continue
		}
		if matched {
			return rule.NextTeam, nil
		}
	}
	return routing.Default, nil
}
