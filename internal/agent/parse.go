package agent

import (
	"encoding/json"
	"regexp"
)

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseToolCall scans a model response for the first fenced JSON block that
// decodes to an object carrying both "tool" and "args". Anything else means
// the response is a final answer.
func parseToolCall(response string) (tool string, args map[string]any, ok bool) {
	for _, m := range fencedRe.FindAllStringSubmatch(response, -1) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(m[1]), &obj); err != nil {
			continue
		}
		rawTool, hasTool := obj["tool"]
		rawArgs, hasArgs := obj["args"]
		if !hasTool || !hasArgs {
			continue
		}
		if err := json.Unmarshal(rawTool, &tool); err != nil || tool == "" {
			continue
		}
		args = make(map[string]any)
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			continue
		}
		return tool, args, true
	}
	return "", nil, false
}
