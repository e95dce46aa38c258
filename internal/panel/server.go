// Package panel serves the thin HTTP surface spec.md §6 names at the
// service boundary: submit a work order, poll a workflow's terminal
// record, and a liveness probe. spec.md treats this surface as an
// external collaborator specified only at its interface; this package is
// that interface, wired to the Orchestrator and Workflow Store rather
// than a dashboard. Grounded on the teacher's internal/panel/server.go
// mux-and-handler shape, narrowed from a template-rendering management
// UI to a JSON API.
package panel

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/c4h-run/refactorctl/internal/config"
	"github.com/c4h-run/refactorctl/internal/orchestrator"
	"github.com/c4h-run/refactorctl/internal/validation"
	"github.com/c4h-run/refactorctl/internal/workflowstore"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Orchestrator is the subset of orchestrator.Orchestrator the panel
// drives, narrowed so tests can substitute a fake.
type Orchestrator interface {
	InitializeWorkflow(order schema.WorkOrder) (*config.Store, schema.Context, error)
	ExecuteWorkflow(ctx context.Context, effective *config.Store, taskCtx schema.Context, entryTeam string, maxTeams int) orchestrator.WorkflowResult
	EntryTeam(effective *config.Store) string
}

// Deps holds the dependencies for the panel's HTTP handlers.
type Deps struct {
	Orchestrator Orchestrator
	Store        *workflowstore.Store
	Validator    *validation.SchemaValidator
	TeamCount    int
	Logger       *slog.Logger
}

// Server serves the work order submission and status API.
type Server struct {
	deps Deps
}

// NewServer builds a panel Server. deps.Logger defaults to a stderr text
// logger when nil.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the panel's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/workflow", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/v1/workflow/{id}", s.handleGetWorkflow)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}
