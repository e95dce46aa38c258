package agentruntime

import (
	"context"

	"github.com/c4h-run/refactorctl/internal/collaborators"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// DiscoveryAgent shells directly to the project scanner collaborator
// rather than the LLM — its output is the raw manifest of project files,
// not an LLM's interpretation of them (spec §4.4: "Discovery... builds
// its AgentResult.Data directly from the scanner collaborator's reply").
// It implements NonLLMAgent so the Runtime skips the template/LLM path.
type DiscoveryAgent struct {
	scanner collaborators.Scanner
}

// NewDiscoveryAgent wires the scanner collaborator Discovery depends on.
func NewDiscoveryAgent(scanner collaborators.Scanner) *DiscoveryAgent {
	return &DiscoveryAgent{scanner: scanner}
}

func (a *DiscoveryAgent) Kind() string           { return "discovery" }
func (a *DiscoveryAgent) SystemTemplate() string { return "" }
func (a *DiscoveryAgent) UserTemplate() string    { return "" }

// ParseReply is unused for a NonLLMAgent but required to satisfy Agent.
func (a *DiscoveryAgent) ParseReply(raw string) (map[string]any, error) {
	return map[string]any{"raw_output": raw}, nil
}

// Collect implements NonLLMAgent. Discovery makes no sub-calls of its own,
// so selfEventID is unused.
func (a *DiscoveryAgent) Collect(ctx context.Context, taskCtx schema.Context, selfEventID string) (map[string]any, error) {
	rawOutput, files, err := a.scanner.Scan(ctx, taskCtx.ProjectPath, taskCtx.Intent.TargetFiles, nil)
	if err != nil {
		return nil, err
	}

	filesAny := make(map[string]any, len(files))
	for k, v := range files {
		filesAny[k] = v
	}
	return map[string]any{"files": filesAny, "raw_output": rawOutput}, nil
}
