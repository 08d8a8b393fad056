package agent

import "testing"

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantTool string
		wantOK   bool
	}{
		{
			"fenced json",
			"```json\n{\"tool\": \"file_manager\", \"args\": {\"path\": \"a.txt\"}}\n```",
			"file_manager", true,
		},
		{
			"fence without language tag",
			"```\n{\"tool\": \"echo\", \"args\": {}}\n```",
			"echo", true,
		},
		{
			"surrounding prose",
			"Let me check.\n```json\n{\"tool\": \"web_scraper\", \"args\": {\"url\": \"http://x\"}}\n```\nThat should do it.",
			"web_scraper", true,
		},
		{
			"missing args",
			"```json\n{\"tool\": \"echo\"}\n```",
			"", false,
		},
		{
			"missing tool",
			"```json\n{\"args\": {}}\n```",
			"", false,
		},
		{
			"tool not a string",
			"```json\n{\"tool\": 7, \"args\": {}}\n```",
			"", false,
		},
		{
			"empty tool name",
			"```json\n{\"tool\": \"\", \"args\": {}}\n```",
			"", false,
		},
		{
			"invalid json",
			"```json\n{\"tool\": \"echo\", \"args\": }\n```",
			"", false,
		},
		{
			"plain answer",
			"The capital of France is Paris.",
			"", false,
		},
		{
			"json without fence",
			"{\"tool\": \"echo\", \"args\": {}}",
			"", false,
		},
		{
			"first fence invalid second valid",
			"```json\n{\"thought\": \"hmm\"}\n```\n```json\n{\"tool\": \"echo\", \"args\": {\"n\": 1}}\n```",
			"echo", true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, args, ok := parseToolCall(tt.response)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tool != tt.wantTool {
				t.Errorf("tool = %q, want %q", tool, tt.wantTool)
			}
			if ok && args == nil {
				t.Error("args = nil for a valid call")
			}
		})
	}
}

func TestParseToolCallArgs(t *testing.T) {
	tool, args, ok := parseToolCall("```json\n{\"tool\": \"t\", \"args\": {\"s\": \"x\", \"n\": 2.5, \"b\": true}}\n```")
	if !ok || tool != "t" {
		t.Fatalf("parse failed: %q %v", tool, ok)
	}
	if args["s"] != "x" || args["n"] != 2.5 || args["b"] != true {
		t.Errorf("args = %v", args)
	}
}
