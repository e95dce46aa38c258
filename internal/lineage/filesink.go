package lineage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// FileSink writes one JSON document per event under
// <root>/<workflow_run_id>/events/<step>_<agent_kind>.json, per spec §4.3
// and §6's persisted state layout. This sink is always required.
type FileSink struct {
	root string
}

// NewFileSink constructs a FileSink rooted at root (created lazily, per
// event, so an empty root never errors at construction).
func NewFileSink(root string) *FileSink {
	return &FileSink{root: root}
}

func (s *FileSink) Write(_ context.Context, event schema.LineageEvent) error {
	dir := filepath.Join(s.root, event.WorkflowRunID, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("lineage: creating event dir: %w", err)
	}

	name := fmt.Sprintf("%d_%s.json", event.Step, event.AgentKind)
	path := filepath.Join(dir, name)

	body, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return fmt.Errorf("lineage: marshaling event: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("lineage: writing event: %w", err)
	}
	return os.Rename(tmp, path)
}
