package agentruntime

import "encoding/json"

func toJSONString(v any) string {
	body, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(body)
}
