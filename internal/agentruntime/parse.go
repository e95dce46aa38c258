package agentruntime

import (
	"encoding/json"
	"strings"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// ExtractJSON pulls the first well-formed JSON object or array out of raw,
// tolerating markdown fenced code blocks and surrounding prose (spec §4.4
// step 5: "parsing robustness — accept fenced code blocks and prose
// wrapping around the JSON payload").
func ExtractJSON(raw string) (map[string]any, error) {
	candidate := stripFence(raw)

	if obj, err := tryUnmarshalObject(candidate); err == nil {
		return obj, nil
	}

	start := strings.IndexAny(candidate, "{[")
	if start == -1 {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "no JSON object found in agent reply").WithDetails(map[string]any{"raw_output": raw})
	}
	end := matchingBracket(candidate, start)
	if end == -1 {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "unterminated JSON object in agent reply").WithDetails(map[string]any{"raw_output": raw})
	}

	obj, err := tryUnmarshalObject(candidate[start : end+1])
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "agent reply is not valid JSON: %s", err.Error()).WithCause(err).WithDetails(map[string]any{"raw_output": raw})
	}
	return obj, nil
}

func tryUnmarshalObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		var arr []any
		if arrErr := json.Unmarshal([]byte(strings.TrimSpace(s)), &arr); arrErr == nil {
			return map[string]any{"items": arr}, nil
		}
		return nil, err
	}
	return obj, nil
}

// stripFence removes a leading ```json / ``` fence and its trailing ```.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNewline := strings.Index(s, "\n")
	if firstNewline == -1 {
		return s
	}
	body := s[firstNewline+1:]
	if idx := strings.LastIndex(body, "```"); idx != -1 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// matchingBracket finds the index of the bracket matching the opener at
// open, respecting string literals so braces inside strings don't confuse it.
func matchingBracket(s string, open int) int {
	opener := s[open]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
