package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireCmd(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func TestCodeExecutorShell(t *testing.T) {
	requireCmd(t, "sh")
	tool := NewCodeExecutorTool(t.TempDir(), 10*time.Second, 0)

	out, err := tool.Execute(context.Background(), map[string]any{
		"code": "echo hello", "language": "sh",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("out = %q", out)
	}
}

func TestCodeExecutorCapturesStderr(t *testing.T) {
	requireCmd(t, "sh")
	tool := NewCodeExecutorTool(t.TempDir(), 10*time.Second, 0)

	out, err := tool.Execute(context.Background(), map[string]any{
		"code": "echo out; echo err >&2", "language": "sh",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "out") || !strings.Contains(out, "STDERR:\nerr") {
		t.Errorf("out = %q", out)
	}
}

func TestCodeExecutorFailure(t *testing.T) {
	requireCmd(t, "sh")
	tool := NewCodeExecutorTool(t.TempDir(), 10*time.Second, 0)

	if _, err := tool.Execute(context.Background(), map[string]any{
		"code": "exit 3", "language": "sh",
	}); err == nil {
		t.Error("non-zero exit accepted")
	}
}

func TestCodeExecutorTimeout(t *testing.T) {
	requireCmd(t, "sh")
	tool := NewCodeExecutorTool(t.TempDir(), 100*time.Millisecond, 0)

	_, err := tool.Execute(context.Background(), map[string]any{
		"code": "sleep 5", "language": "sh",
	})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestCodeExecutorTruncatesOutput(t *testing.T) {
	requireCmd(t, "sh")
	tool := NewCodeExecutorTool(t.TempDir(), 10*time.Second, 16)

	out, err := tool.Execute(context.Background(), map[string]any{
		"code": "printf 'aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa'", "language": "sh",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "... (output truncated)") {
		t.Errorf("out = %q", out)
	}
}

func TestCodeExecutorArgValidation(t *testing.T) {
	tool := NewCodeExecutorTool(t.TempDir(), time.Second, 0)
	ctx := context.Background()
	if _, err := tool.Execute(ctx, map[string]any{"language": "sh"}); err == nil {
		t.Error("missing code accepted")
	}
	if _, err := tool.Execute(ctx, map[string]any{"code": "x", "language": "cobol"}); err == nil {
		t.Error("unsupported language accepted")
	}
}
