package agentruntime

import (
	"github.com/c4h-run/refactorctl/pkg/schema"
)

const solutionDesignerSystemTemplate = `You design precise, minimal code changes that satisfy a stated intent.
Respond with a single JSON object: {"changes":[{"file_path":...,"type":"create|modify|delete","description":...,"content":...,"diff":...}]}.
Every change needs "content" or "diff" unless it is a delete.`

const solutionDesignerUserTemplate = `Intent: ${{context.intent.description}}
Target files: ${{context.intent.target_files}}
Discovered project files: ${{context.input_data.discovery_data}}`

// SolutionDesignerAgent turns discovered project files and an intent into
// a proposed FileChangeSet (spec §4.4: Solution Designer's AgentResult.Data
// is `{changes:[FileChange]}`).
type SolutionDesignerAgent struct{}

// NewSolutionDesignerAgent constructs a SolutionDesignerAgent.
func NewSolutionDesignerAgent() *SolutionDesignerAgent { return &SolutionDesignerAgent{} }

func (a *SolutionDesignerAgent) Kind() string           { return "solution_designer" }
func (a *SolutionDesignerAgent) SystemTemplate() string { return solutionDesignerSystemTemplate }
func (a *SolutionDesignerAgent) UserTemplate() string    { return solutionDesignerUserTemplate }

func (a *SolutionDesignerAgent) ParseReply(raw string) (map[string]any, error) {
	envelope, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	changesRaw, ok := envelope["changes"].([]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeParse, "solution designer reply is missing a \"changes\" array")
	}

	changes := make([]schema.FileChange, 0, len(changesRaw))
	for i, raw := range changesRaw {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "solution designer change %d is not an object", i)
		}
		change := schema.FileChange{
			FilePath:    stringField(m, "file_path"),
			Type:        schema.FileChangeType(stringField(m, "type")),
			Description: stringField(m, "description"),
		}
		if v, ok := m["content"].(string); ok {
			change.Content = &v
		}
		if v, ok := m["diff"].(string); ok {
			change.Diff = &v
		}
		if err := change.Validate(); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "solution designer change %d: %s", i, err.Error()).WithCause(err)
		}
		changes = append(changes, change)
	}

	return map[string]any{"changes": changes}, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
