package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

// dropNulls removes null-valued keys so optional fields the model explicitly
// set to null validate the same as omitted ones.
func dropNulls(raw string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(pruneNulls(v))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func pruneNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = pruneNulls(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = pruneNulls(val)
		}
		return t
	default:
		return v
	}
}
