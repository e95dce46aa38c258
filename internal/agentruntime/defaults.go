package agentruntime

import (
	"github.com/c4h-run/refactorctl/internal/collaborators"
	"github.com/c4h-run/refactorctl/internal/lineage"
)

// RegisterDefaults registers the three built-in agent kinds spec §4.4
// names explicitly (discovery, solution_designer, coder) against the
// given collaborators. Custom agent kinds are registered separately by
// the caller, directly against the Registry.
func RegisterDefaults(registry *Registry, scanner collaborators.Scanner, merger collaborators.Merger, writer collaborators.AssetWriter, recorder *lineage.Recorder) error {
	if err := registry.Register(NewDiscoveryAgent(scanner)); err != nil {
		return err
	}
	if err := registry.Register(NewSolutionDesignerAgent()); err != nil {
		return err
	}
	if err := registry.Register(NewCoderAgent(merger, writer, recorder)); err != nil {
		return err
	}
	return nil
}
