package agentruntime

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/c4h-run/refactorctl/internal/collaborators"
	"github.com/c4h-run/refactorctl/internal/lineage"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// CoderAgent applies a FileChangeSet to disk. Unlike Solution Designer it
// never talks to the LLM Adapter: it consumes the changes produced
// upstream and, for each one, merges the new content and writes it via
// the Merger and AssetWriter collaborators (spec §4.4: "Coder... invokes
// the merge and asset-write skills once per FileChange, recording each
// as a lineage event parented under the Coder's own event"). It
// implements NonLLMAgent so the Runtime dispatches to Collect.
type CoderAgent struct {
	merger   collaborators.Merger
	writer   collaborators.AssetWriter
	recorder *lineage.Recorder
}

// NewCoderAgent wires the merge and asset-write collaborators plus the
// lineage recorder Coder needs to parent its skill-level sub-events.
func NewCoderAgent(merger collaborators.Merger, writer collaborators.AssetWriter, recorder *lineage.Recorder) *CoderAgent {
	return &CoderAgent{merger: merger, writer: writer, recorder: recorder}
}

func (a *CoderAgent) Kind() string           { return "coder" }
func (a *CoderAgent) SystemTemplate() string { return "" }
func (a *CoderAgent) UserTemplate() string    { return "" }

// ParseReply is unused for a NonLLMAgent but required to satisfy Agent.
func (a *CoderAgent) ParseReply(raw string) (map[string]any, error) {
	return map[string]any{"raw_output": raw}, nil
}

// Collect implements NonLLMAgent. taskCtx.InputData["changes"] must hold
// the []schema.FileChange produced by Solution Designer and threaded
// through by the Team.
func (a *CoderAgent) Collect(ctx context.Context, taskCtx schema.Context, selfEventID string) (map[string]any, error) {
	changes, err := extractChanges(taskCtx.InputData)
	if err != nil {
		return nil, err
	}

	results := make([]any, 0, len(changes))
	for _, change := range changes {
		results = append(results, a.applyChange(ctx, taskCtx.WorkflowRunID, selfEventID, taskCtx.ProjectPath, change))
	}
	return map[string]any{"changes": results}, nil
}

func (a *CoderAgent) applyChange(ctx context.Context, workflowRunID, parentEventID, projectPath string, change schema.FileChange) schema.FileChangeResult {
	fullPath := filepath.Join(projectPath, change.FilePath)

	merged := a.recordSkill(ctx, workflowRunID, parentEventID, "coder.merge",
		map[string]any{"file_path": change.FilePath, "type": change.Type}, func() (any, string) {
			reply := a.merger.Merge(collaborators.MergeRequest{OriginalContent: readIfExists(fullPath), Change: change})
			return reply, reply.Error
		}).(collaborators.MergeReply)

	if !merged.Success {
		return schema.FileChangeResult{File: change.FilePath, Success: false, Error: merged.Error}
	}

	if change.Type == schema.FileChangeDelete {
		removeErr := a.recordSkill(ctx, workflowRunID, parentEventID, "coder.delete",
			map[string]any{"file_path": change.FilePath}, func() (any, string) {
				err := os.Remove(fullPath)
				if err != nil && os.IsNotExist(err) {
					err = nil
				}
				errMsg := ""
				if err != nil {
					errMsg = err.Error()
				}
				return errMsg, errMsg
			}).(string)
		if removeErr != "" {
			return schema.FileChangeResult{File: change.FilePath, Success: false, Error: removeErr}
		}
		return schema.FileChangeResult{File: change.FilePath, Success: true}
	}

	writeReply := a.recordSkill(ctx, workflowRunID, parentEventID, "coder.write",
		map[string]any{"file_path": change.FilePath}, func() (any, string) {
			reply := a.writer.Write(collaborators.WriteRequest{Path: fullPath, Content: merged.Content, CreateBackup: true})
			return reply, reply.Error
		}).(collaborators.WriteReply)

	if !writeReply.Success {
		return schema.FileChangeResult{File: change.FilePath, Success: false, Error: writeReply.Error}
	}
	return schema.FileChangeResult{File: change.FilePath, Success: true, BackupPath: writeReply.BackupPath}
}

// recordSkill runs fn, records its outcome as a lineage event parented
// under parentEventID (Coder's own event, not yet itself recorded), and
// returns fn's output value unchanged so the caller can type-assert it.
func (a *CoderAgent) recordSkill(ctx context.Context, workflowRunID, parentEventID, skillName string, input map[string]any, fn func() (any, string)) any {
	step, _, _ := a.recorder.NextEvent(workflowRunID, skillName)
	started := time.Now().UTC()
	output, errMsg := fn()
	finished := time.Now().UTC()

	a.recorder.Record(ctx, schema.LineageEvent{
		EventID:        lineage.NewEventID(),
		WorkflowRunID:  workflowRunID,
		ParentID:       parentEventID,
		AgentKind:      skillName,
		Step:           step,
		StartedAt:      started,
		FinishedAt:     finished,
		InputSnapshot:  input,
		OutputSnapshot: map[string]any{"result": output},
		Error:          errMsg,
	})
	return output
}

func extractChanges(inputData map[string]any) ([]schema.FileChange, error) {
	raw, ok := inputData["changes"]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeInput, "coder: input_data is missing \"changes\"")
	}
	switch v := raw.(type) {
	case []schema.FileChange:
		return v, nil
	case []any:
		changes := make([]schema.FileChange, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeInput, "coder: change %d is not an object", i)
			}
			change := schema.FileChange{
				FilePath:    stringField(m, "file_path"),
				Type:        schema.FileChangeType(stringField(m, "type")),
				Description: stringField(m, "description"),
			}
			if s, ok := m["content"].(string); ok {
				change.Content = &s
			}
			if s, ok := m["diff"].(string); ok {
				change.Diff = &s
			}
			changes = append(changes, change)
		}
		return changes, nil
	default:
		return nil, schema.NewError(schema.ErrCodeInput, "coder: input_data \"changes\" has an unexpected shape")
	}
}

func readIfExists(path string) *string {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s := string(body)
	return &s
}
