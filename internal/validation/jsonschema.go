// Package validation provides structural (JSON Schema) validation for the
// two untrusted document shapes the service accepts: the inbound work
// order request body, and the JSON an LLM returns for the Solution
// Designer agent kind ({changes: [FileChange]}).
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

const workOrderSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://refactorctl.dev/schemas/work_order.json",
  "type": "object",
  "required": ["project_path", "intent"],
  "properties": {
    "project_path": { "type": "string", "minLength": 1 },
    "intent": {
      "type": "object",
      "required": ["description"],
      "properties": {
        "description": { "type": "string", "minLength": 1 },
        "target_files": { "type": "array", "items": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "overlays": {
      "type": "object",
      "properties": {
        "system": { "type": "object" },
        "app": { "type": "object" }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

const fileChangeSetSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://refactorctl.dev/schemas/file_change_set.json",
  "type": "object",
  "required": ["changes"],
  "properties": {
    "changes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["file_path", "type"],
        "properties": {
          "file_path": { "type": "string", "minLength": 1 },
          "type": { "type": "string", "enum": ["create", "modify", "delete"] },
          "description": { "type": "string" },
          "content": { "type": "string" },
          "diff": { "type": "string" }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// SchemaValidator validates untrusted JSON documents against the two fixed
// schemas the service needs: the work order request body and an LLM's
// structured {changes:[FileChange]} reply. Safe for concurrent use.
type SchemaValidator struct {
	workOrder *jsonschema.Schema
	fileSet   *jsonschema.Schema

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewSchemaValidator compiles both fixed schemas once at construction.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := newCompiler()

	workOrder, err := compileInline(c, "https://refactorctl.dev/schemas/work_order.json", workOrderSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile work order schema: %w", err)
	}

	c2 := newCompiler()
	fileSet, err := compileInline(c2, "https://refactorctl.dev/schemas/file_change_set.json", fileChangeSetSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile file change set schema: %w", err)
	}

	return &SchemaValidator{
		workOrder: workOrder,
		fileSet:   fileSet,
		cache:     make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateWorkOrder checks a decoded request body against the work order shape.
func (v *SchemaValidator) ValidateWorkOrder(doc map[string]any) error {
	jv, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeInput, "failed to serialize work order").WithCause(err)
	}
	if err := v.workOrder.Validate(jv); err != nil {
		return toTaxonomyError(schema.ErrCodeInput, err)
	}
	return nil
}

// ValidateFileChangeSet checks a Solution Designer reply's parsed JSON
// against the {changes:[FileChange]} shape, per spec's parsing robustness
// requirement (malformed replies become parse_error, not a panic).
func (v *SchemaValidator) ValidateFileChangeSet(doc map[string]any) error {
	jv, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeParse, "failed to serialize changeset").WithCause(err)
	}
	if err := v.fileSet.Validate(jv); err != nil {
		return toTaxonomyError(schema.ErrCodeParse, err)
	}
	return nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

func compileInline(c *jsonschema.Compiler, url, raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toTaxonomyError(code string, err error) *schema.TaxonomyError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(code, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(code, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(code, violations[0]).WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(code, msg).WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
