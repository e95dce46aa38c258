// Package orchestrator implements the Orchestrator (C6): it merges a work
// order's overlays into an effective configuration, assigns a
// workflow_run_id, and drives the team-to-team loop described in spec §4.6,
// persisting the terminal record to the Workflow Store. Grounded on the
// teacher's internal/engine/executor.go driver-loop shape (preflight,
// bounded iteration, terminal status), narrowed to Team/TeamResult instead
// of the teacher's generic DAG node executor.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c4h-run/refactorctl/internal/agentruntime"
	"github.com/c4h-run/refactorctl/internal/config"
	"github.com/c4h-run/refactorctl/internal/lineage"
	"github.com/c4h-run/refactorctl/internal/secrets"
	"github.com/c4h-run/refactorctl/internal/team"
	"github.com/c4h-run/refactorctl/internal/workflowstore"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// defaultMaxTeams is spec §4.6's "max_teams (default 10)".
const defaultMaxTeams = 10

// ProviderSecret names the environment variable an agent's resolved
// provider needs, so Orchestrator can preflight-check it without ever
// reading a template or lineage snapshot for secret material.
type ProviderSecret struct {
	Provider  string `yaml:"provider" json:"provider"`
	EnvVarKey string `yaml:"env_var_key" json:"env_var_key"`
}

// Orchestrator chains TeamDefinitions into a workflow run. One instance is
// shared across concurrent workflow runs (spec §5: "multiple workflows run
// concurrently"); no per-run mutable state lives on the struct itself.
type Orchestrator struct {
	teams           map[string]schema.TeamDefinition
	registry        *agentruntime.Registry
	store           *workflowstore.Store
	recorder        *lineage.Recorder
	envResolver     secrets.EnvResolver
	providerSecrets []ProviderSecret
	logger          *slog.Logger

	serverDefaults schema.Tree
	storageRoot    string
	buildTeam      func(def schema.TeamDefinition, configs *config.Store) *team.Team

	// MaxTeams bounds execution_path length (spec §4.6, §5's "team-cap
	// exceeded"). Zero means defaultMaxTeams.
	MaxTeams int
	// RetryTeams mirrors orchestration.error_handling.retry_teams: a
	// terminally-failed team is re-executed up to TeamMaxRetries times
	// with the same input context before fallback/error.
	RetryTeams     bool
	TeamMaxRetries int
}

// New constructs an Orchestrator over a fixed set of team definitions.
// buildTeam lets the caller inject how a TeamDefinition becomes an
// executable *team.Team (it needs the adapter and recorder Team.New already
// requires); Orchestrator only needs a Store-parameterized constructor
// because every team shares the run's effective config.
func New(
	teams []schema.TeamDefinition,
	registry *agentruntime.Registry,
	serverDefaults schema.Tree,
	storageRoot string,
	buildTeam func(def schema.TeamDefinition, configs *config.Store) *team.Team,
	store *workflowstore.Store,
	recorder *lineage.Recorder,
	envResolver secrets.EnvResolver,
	providerSecrets []ProviderSecret,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]schema.TeamDefinition, len(teams))
	for _, t := range teams {
		byID[t.TeamID] = t
	}
	return &Orchestrator{
		teams:           byID,
		registry:        registry,
		store:           store,
		recorder:        recorder,
		envResolver:     envResolver,
		providerSecrets: providerSecrets,
		logger:          logger,
		serverDefaults:  serverDefaults,
		storageRoot:     storageRoot,
		buildTeam:       buildTeam,
		MaxTeams:        defaultMaxTeams,
	}
}

// InitializeWorkflow merges overlays onto server defaults, assigns a
// workflow_run_id, and runs the preflight checks from spec §4.6. It does
// not touch the Workflow Store; ExecuteWorkflow does that once a terminal
// status is known.
func (o *Orchestrator) InitializeWorkflow(order schema.WorkOrder) (*config.Store, schema.Context, error) {
	effective := config.Build(o.serverDefaults, order.Overlays.System, order.Overlays.App)

	runID := lineage.NewWorkflowRunID()
	initialCtx := schema.Context{
		WorkflowRunID: runID,
		ProjectPath:   order.ProjectPath,
		Intent:        order.Intent,
		InputData:     map[string]any{},
	}

	entryTeam, _ := effective.Get("orchestration.entry_team")
	entryTeamName, _ := entryTeam.(string)
	if entryTeamName == "" {
		return nil, schema.Context{}, schema.NewError(schema.ErrCodeConfig, "orchestrator: orchestration.entry_team is not set")
	}
	if err := o.preflight(entryTeamName); err != nil {
		return nil, schema.Context{}, err
	}

	return effective, initialCtx, nil
}

// EntryTeam reads orchestration.entry_team back out of an effective
// config built by InitializeWorkflow, so a caller (e.g. the panel HTTP
// layer) can pass it to ExecuteWorkflow without re-parsing the tree.
func (o *Orchestrator) EntryTeam(effective *config.Store) string {
	v, _ := effective.Get("orchestration.entry_team")
	name, _ := v.(string)
	return name
}

// preflight verifies entryTeam exists, every agent kind referenced by any
// configured team is registered, and every configured provider's secret
// environment variable is set — never reading the variable's value.
func (o *Orchestrator) preflight(entryTeam string) error {
	if _, ok := o.teams[entryTeam]; !ok {
		return schema.NewErrorf(schema.ErrCodeConfig, "orchestrator: entry_team %q is not a registered team", entryTeam)
	}

	for _, def := range o.teams {
		for _, task := range def.Tasks {
			if _, err := o.registry.Get(task.AgentKind); err != nil {
				return schema.NewErrorf(schema.ErrCodeConfig,
					"orchestrator: team %q references unregistered agent kind %q", def.TeamID, task.AgentKind)
			}
		}
	}

	for _, ps := range o.providerSecrets {
		if !o.envResolver.Resolvable(ps.EnvVarKey) {
			return schema.NewErrorf(schema.ErrCodeConfig,
				"orchestrator: provider %q secret is not resolvable (environment variable %q is unset)", ps.Provider, ps.EnvVarKey)
		}
	}
	return nil
}

// WorkflowResult is execute_workflow's return value (spec §4.6).
type WorkflowResult struct {
	WorkflowID    string
	Status        schema.WorkflowStatus
	Error         string
	ExecutionPath []string
	TeamResults   map[string]schema.TeamResult
	FinalContext  schema.Context
}

// ExecuteWorkflow runs the driver loop starting at entryTeam (spec §4.6):
// run a team, record its id and TeamResult, follow next_team, until
// next_team is empty, maxTeams (0 means o.MaxTeams, itself defaulting to
// defaultMaxTeams) is reached, or an unrescued terminal failure occurs.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, effective *config.Store, taskCtx schema.Context, entryTeam string, maxTeams int) WorkflowResult {
	if maxTeams <= 0 {
		maxTeams = o.MaxTeams
	}
	if maxTeams <= 0 {
		maxTeams = defaultMaxTeams
	}

	retryTeams := o.RetryTeams
	if v, ok := effective.Get("orchestration.error_handling.retry_teams"); ok {
		if b, ok := v.(bool); ok {
			retryTeams = b
		}
	}
	fallbackTeam, _ := effective.Get("orchestration.fallback_team")
	fallbackTeamName, _ := fallbackTeam.(string)

	startedAt := time.Now().UTC()
	workflowID := taskCtx.WorkflowRunID
	o.recorder.CreateWorkflowContext(workflowID)

	rec := schema.WorkflowRecord{
		WorkflowID: workflowID,
		Status:     schema.WorkflowPending,
		StartedAt:  startedAt,
	}
	rec.StoragePath = workflowstore.NewStoragePath(o.storageRoot, workflowID, startedAt)
	_ = o.store.Put(ctx, rec)
	if err := o.store.WriteEffectiveConfig(workflowID, startedAt, effective.Tree()); err != nil {
		o.logger.Warn("orchestrator.write_effective_config_failed", slog.String("workflow_id", workflowID), slog.Any("error", err))
	}

	executionPath := make([]string, 0, maxTeams)
	teamResults := make(map[string]schema.TeamResult, maxTeams)
	current := taskCtx
	currentTeam := entryTeam
	usedFallback := false

	var finalStatus schema.WorkflowStatus
	var finalErr string

	for {
		if len(executionPath) >= maxTeams {
			finalStatus = schema.WorkflowError
			finalErr = fmt.Sprintf("orchestrator: team-cap exceeded (max_teams=%d)", maxTeams)
			break
		}

		def, ok := o.teams[currentTeam]
		if !ok {
			finalStatus = schema.WorkflowError
			finalErr = fmt.Sprintf("orchestrator: routed to unknown team %q", currentTeam)
			break
		}

		result, nextCtx := o.runTeamWithRetry(ctx, def, current, effective, retryTeams)
		current = nextCtx
		executionPath = append(executionPath, currentTeam)
		teamResults[currentTeam] = result

		// Routing already decided next_team from this team's own rules
		// (spec §4.5: evaluated the same way regardless of success), so a
		// failed team that names its own rescue team, or intentionally
		// ends the workflow with next_team=null, is honored as-is.
		next := result.NextTeam
		if next == "" {
			if result.Success {
				finalStatus = schema.WorkflowSuccess
			} else {
				finalStatus = schema.WorkflowError
				finalErr = fmt.Sprintf("orchestrator: team %q failed terminally", currentTeam)
			}
			break
		}

		if fallbackTeamName != "" && next == fallbackTeamName {
			if usedFallback {
				finalStatus = schema.WorkflowError
				finalErr = fmt.Sprintf("orchestrator: team %q routed to fallback %q, but fallback was already used", currentTeam, fallbackTeamName)
				break
			}
			usedFallback = true
			o.logger.Warn("orchestrator.team_routing_to_fallback",
				slog.String("workflow_id", workflowID), slog.String("team_id", currentTeam))
		}

		currentTeam = next
	}

	finishedAt := time.Now().UTC()
	rec.Status = finalStatus
	rec.Error = finalErr
	rec.ExecutionPath = executionPath
	rec.TeamResults = teamResults
	rec.FinishedAt = finishedAt
	_ = o.store.Put(ctx, rec)
	if err := o.store.SetStatus(ctx, workflowID, finalStatus, finalErr, finishedAt); err != nil {
		o.logger.Warn("orchestrator.set_status_failed", slog.String("workflow_id", workflowID), slog.Any("error", err))
	}
	if err := o.store.WriteResult(rec); err != nil {
		o.logger.Warn("orchestrator.write_result_failed", slog.String("workflow_id", workflowID), slog.Any("error", err))
	}

	return WorkflowResult{
		WorkflowID:    workflowID,
		Status:        finalStatus,
		Error:         finalErr,
		ExecutionPath: executionPath,
		TeamResults:   teamResults,
		FinalContext:  current,
	}
}

// runTeamWithRetry runs def once, and, if retryTeams is set and the team
// failed terminally, re-runs it up to max_retries times with the same
// input context, per spec §4.6's "re-executed up to max_retries at the
// team level with the same input context". max_retries comes from
// orchestration.error_handling.max_retries, falling back to
// o.TeamMaxRetries, then 1.
func (o *Orchestrator) runTeamWithRetry(ctx context.Context, def schema.TeamDefinition, taskCtx schema.Context, effective *config.Store, retryTeams bool) (schema.TeamResult, schema.Context) {
	maxRetries := 0
	if retryTeams {
		maxRetries = o.TeamMaxRetries
		if v, ok := effective.Get("orchestration.error_handling.max_retries"); ok {
			if n, ok := v.(int); ok {
				maxRetries = n
			}
		}
		if maxRetries == 0 {
			maxRetries = 1
		}
	}

	t := o.buildTeam(def, effective)
	var result schema.TeamResult
	var nextCtx schema.Context
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, nextCtx = t.Execute(ctx, taskCtx)
		if result.Success || attempt == maxRetries {
			break
		}
		o.logger.Warn("orchestrator.team_retrying", slog.String("team_id", def.TeamID), slog.Int("attempt", attempt+1))
	}
	return result, nextCtx
}
