package agent

import (
	"fmt"
	"sort"
	"strings"
)

// systemPrompt builds the per-agent system prompt from its identity and the
// descriptions of its allowed tools. Tool order is sorted so the prompt is
// stable across restarts.
func systemPrompt(name, role string, toolDescs map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, an AI agent with the role: %s.\n\n", name, role)

	if len(toolDescs) > 0 {
		sb.WriteString("You have access to the following tools:\n")
		names := make([]string, 0, len(toolDescs))
		for n := range toolDescs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(&sb, "- %s: %s\n", n, toolDescs[n])
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`At each step, respond with exactly one of:
1. A tool call, as a fenced JSON object:
` + "```json\n" + `{"tool": "<tool name>", "args": {...}}
` + "```\n" + `2. A plain-text final answer, with no fenced JSON block.

Use a tool when you need more information or need to act. Give a final
answer as soon as you can.`)
	return sb.String()
}

// renderPrompt assembles the full prompt for one loop iteration.
func renderPrompt(system string, history []string) string {
	return system + "\n\n--- History ---\n" + strings.Join(history, "\n") + "\n\nYour Action:"
}
