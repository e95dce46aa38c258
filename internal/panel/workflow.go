package panel

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// workflowResponse is the shape spec.md §6 names for both endpoints:
// { workflow_id, status, storage_path, error? }.
type workflowResponse struct {
	WorkflowID  string                `json:"workflow_id"`
	Status      schema.WorkflowStatus `json:"status"`
	StoragePath string                `json:"storage_path"`
	Error       string                `json:"error,omitempty"`
}

// handleCreateWorkflow accepts a work order, runs it to completion, and
// returns its terminal record. Per spec.md §6 this returns HTTP 200 even
// for a workflow that finished with status=error; only a malformed or
// schema-invalid body (400) or an InitializeWorkflow failure (422) yields
// non-200.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateWorkOrder(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var order schema.WorkOrder
	body, _ := json.Marshal(raw)
	if err := json.Unmarshal(body, &order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid work order: "+err.Error())
		return
	}

	effective, taskCtx, err := s.deps.Orchestrator.InitializeWorkflow(order)
	if err != nil {
		s.deps.Logger.Warn("panel.initialize_workflow_failed", slog.Any("error", err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	entryTeam := s.deps.Orchestrator.EntryTeam(effective)
	result := s.deps.Orchestrator.ExecuteWorkflow(r.Context(), effective, taskCtx, entryTeam, 0)

	record, _ := s.deps.Store.Get(result.WorkflowID)
	writeJSON(w, http.StatusOK, workflowResponse{
		WorkflowID:  result.WorkflowID,
		Status:      result.Status,
		StoragePath: record.StoragePath,
		Error:       result.Error,
	})
}

// handleGetWorkflow returns a previously run workflow's terminal record.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, ok := s.deps.Store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse{
		WorkflowID:  record.WorkflowID,
		Status:      record.Status,
		StoragePath: record.StoragePath,
		Error:       record.Error,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
