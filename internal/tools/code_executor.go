package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// CodeExecutorTool runs a code snippet through an interpreter with a hard
// timeout and a cap on captured output.
type CodeExecutorTool struct {
	workspace      string
	timeout        time.Duration
	maxOutputBytes int
}

func NewCodeExecutorTool(workspace string, timeout time.Duration, maxOutputBytes int) *CodeExecutorTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = 64 * 1024
	}
	return &CodeExecutorTool{workspace: workspace, timeout: timeout, maxOutputBytes: maxOutputBytes}
}

func (t *CodeExecutorTool) Name() string { return "code_executor" }

func (t *CodeExecutorTool) Description() string {
	return "Execute a code snippet. Args: code, language (python|sh, default python)."
}

func (t *CodeExecutorTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return "", fmt.Errorf("code is required")
	}
	language, _ := args["language"].(string)

	var name string
	var cmdArgs []string
	switch language {
	case "", "python", "python3":
		name = "python3"
		cmdArgs = []string{"-c", code}
	case "sh", "shell", "bash":
		name = "sh"
		cmdArgs = []string{"-c", code}
	default:
		return "", fmt.Errorf("unsupported language %q", language)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, cmdArgs...)
	cmd.Dir = t.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	out := stdout.String()
	if stderr.Len() > 0 {
		if out != "" {
			out += "\n"
		}
		out += "STDERR:\n" + stderr.String()
	}
	if len(out) > t.maxOutputBytes {
		out = out[:t.maxOutputBytes] + "\n... (output truncated)"
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("execution timed out after %s", t.timeout)
		}
		if out == "" {
			out = err.Error()
		}
		return "", fmt.Errorf("execution failed: %s", out)
	}
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}
