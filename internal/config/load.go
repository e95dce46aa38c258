package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadYAML reads a YAML file from disk and decodes it into a config tree,
// expanding ${VAR} references in string scalars from the process
// environment at load time. Unknown keys are preserved (forward-compatible
// merges downstream); this function never validates shape.
func LoadYAML(path string) (schema.Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read config file %s: %s", path, err).WithCause(err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes YAML bytes into a config tree with ${VAR} expansion.
func ParseYAML(raw []byte) (schema.Tree, error) {
	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "parse yaml: %s", err).WithCause(err)
	}
	if decoded == nil {
		decoded = schema.Tree{}
	}
	return expandEnvTree(decoded).(schema.Tree), nil
}

func expandEnvTree(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = expandEnvTree(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = expandEnvTree(vv)
		}
		return out
	case string:
		return expandEnvString(val)
	default:
		return val
	}
}

func expandEnvString(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// SerializeYAML marshals a tree back to YAML, used for persisting the
// workflow's effective_config.json sibling and for the config round-trip
// property tests.
func SerializeYAML(tree schema.Tree) ([]byte, error) {
	return yaml.Marshal(tree)
}
