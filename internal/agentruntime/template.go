package agentruntime

import (
	"strconv"
	"strings"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Interpolate resolves ${{...}} placeholders in template against scope, a
// dotted-path-readable view of the invocation context (spec §4.4 step 3:
// "format request from context+templates via placeholder substitution").
// Grounded on the teacher's expressions/interpolation.go, narrowed to the
// namespaces an agent prompt actually needs — no secrets pass here since
// LLM Adapter provider credentials are resolved separately, never through
// a prompt placeholder.
func Interpolate(template string, scope map[string]any) (string, error) {
	var out strings.Builder
	out.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			out.WriteString(template[i:])
			break
		}
		out.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeParse, "unclosed ${{ placeholder in agent template")
		}
		end += start

		path := strings.TrimSpace(template[start:end])
		if path == "" {
			return "", schema.NewError(schema.ErrCodeParse, "empty ${{ }} placeholder in agent template")
		}

		val, ok := lookupPath(scope, path)
		if !ok {
			return "", schema.NewErrorf(schema.ErrCodeParse, "template placeholder %q has no value in context", path)
		}
		out.WriteString(stringify(val))

		i = end + 2
	}

	return out.String(), nil
}

func lookupPath(scope map[string]any, path string) (any, bool) {
	var current any = scope
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return toJSONString(v)
	}
}
