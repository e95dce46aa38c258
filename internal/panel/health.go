package panel

import "net/http"

type healthResponse struct {
	Status           string `json:"status"`
	WorkflowsTracked int    `json:"workflows_tracked"`
	TeamsAvailable   int    `json:"teams_available"`
}

// handleHealth reports the shape spec.md §6 names:
// { status: "healthy", workflows_tracked, teams_available }.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "healthy",
		WorkflowsTracked: len(s.deps.Store.List()),
		TeamsAvailable:   s.deps.TeamCount,
	})
}
