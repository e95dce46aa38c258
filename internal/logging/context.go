package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	teamIDKey
	taskNameKey
	agentKindKey
)

// WithWorkflowID returns a context with the workflow run ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithTeamID returns a context with the current team ID set.
func WithTeamID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, teamIDKey, id)
}

// WithTaskName returns a context with the current task name set.
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskNameKey, name)
}

// WithAgentKind returns a context with the current agent kind set.
func WithAgentKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, agentKindKey, kind)
}

// WorkflowID extracts the workflow run ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string {
	v, _ := ctx.Value(workflowIDKey).(string)
	return v
}

// TeamID extracts the team ID from the context, or "" if absent.
func TeamID(ctx context.Context) string {
	v, _ := ctx.Value(teamIDKey).(string)
	return v
}

// TaskName extracts the task name from the context, or "" if absent.
func TaskName(ctx context.Context) string {
	v, _ := ctx.Value(taskNameKey).(string)
	return v
}

// AgentKind extracts the agent kind from the context, or "" if absent.
func AgentKind(ctx context.Context) string {
	v, _ := ctx.Value(agentKindKey).(string)
	return v
}

// LogWith returns a logger enriched with whichever correlation IDs are
// present on the context. Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if v := WorkflowID(ctx); v != "" {
		logger = logger.With(slog.String("workflow_id", v))
	}
	if v := TeamID(ctx); v != "" {
		logger = logger.With(slog.String("team_id", v))
	}
	if v := TaskName(ctx); v != "" {
		logger = logger.With(slog.String("task_name", v))
	}
	if v := AgentKind(ctx); v != "" {
		logger = logger.With(slog.String("agent_kind", v))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// workflow_id, team_id, task_name, and agent_kind attributes from the
// context into every log record. Use with slog.New(NewCorrelationHandler
// (inner)) so callers can use logger.InfoContext(ctx, ...) and the
// correlation attributes appear automatically, without every call site
// threading them through slog.String args by hand.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation
// attribute injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := WorkflowID(ctx); v != "" {
		r.AddAttrs(slog.String("workflow_id", v))
	}
	if v := TeamID(ctx); v != "" {
		r.AddAttrs(slog.String("team_id", v))
	}
	if v := TaskName(ctx); v != "" {
		r.AddAttrs(slog.String("task_name", v))
	}
	if v := AgentKind(ctx); v != "" {
		r.AddAttrs(slog.String("agent_kind", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
