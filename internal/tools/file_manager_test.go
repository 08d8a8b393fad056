package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileManagerReadWriteListDelete(t *testing.T) {
	ws := t.TempDir()
	tool := NewFileManagerTool(ws)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{
		"operation": "write", "path": "notes/todo.txt", "content": "hello",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out, "wrote 5 bytes") {
		t.Errorf("write output = %q", out)
	}

	out, err = tool.Execute(ctx, map[string]any{"operation": "read", "path": "notes/todo.txt"})
	if err != nil || out != "hello" {
		t.Fatalf("read = (%q, %v)", out, err)
	}

	out, err = tool.Execute(ctx, map[string]any{"operation": "list", "path": "notes"})
	if err != nil || !strings.Contains(out, "todo.txt") {
		t.Fatalf("list = (%q, %v)", out, err)
	}

	if _, err = tool.Execute(ctx, map[string]any{"operation": "delete", "path": "notes/todo.txt"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err = tool.Execute(ctx, map[string]any{"operation": "read", "path": "notes/todo.txt"}); err == nil {
		t.Error("read after delete succeeded")
	}
}

func TestFileManagerListWorkspaceRoot(t *testing.T) {
	ws := t.TempDir()
	tool := NewFileManagerTool(ws)
	out, err := tool.Execute(context.Background(), map[string]any{"operation": "list"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "(empty directory)" {
		t.Errorf("list empty root = %q", out)
	}
}

func TestFileManagerRejectsEscapes(t *testing.T) {
	ws := t.TempDir()
	tool := NewFileManagerTool(ws)
	ctx := context.Background()

	for _, path := range []string{"../outside.txt", "../../etc/passwd", "a/../../escape"} {
		if _, err := tool.Execute(ctx, map[string]any{"operation": "read", "path": path}); err == nil {
			t.Errorf("path %q escaped the workspace", path)
		}
	}
}

func TestFileManagerRejectsSymlinkEscape(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("hidden"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(ws, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tool := NewFileManagerTool(ws)
	if _, err := tool.Execute(context.Background(), map[string]any{"operation": "read", "path": "link"}); err == nil {
		t.Error("symlink escape not rejected")
	}
}

func TestFileManagerArgValidation(t *testing.T) {
	tool := NewFileManagerTool(t.TempDir())
	ctx := context.Background()
	if _, err := tool.Execute(ctx, map[string]any{"path": "x"}); err == nil {
		t.Error("missing operation accepted")
	}
	if _, err := tool.Execute(ctx, map[string]any{"operation": "read"}); err == nil {
		t.Error("missing path accepted")
	}
	if _, err := tool.Execute(ctx, map[string]any{"operation": "compress", "path": "x"}); err == nil {
		t.Error("unknown operation accepted")
	}
}
