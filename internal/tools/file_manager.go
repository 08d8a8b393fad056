package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileManagerTool reads, writes, lists, and deletes files inside the agent
// workspace. Paths are resolved against the workspace and may not escape it.
type FileManagerTool struct {
	workspace string
}

func NewFileManagerTool(workspace string) *FileManagerTool {
	return &FileManagerTool{workspace: workspace}
}

func (t *FileManagerTool) Name() string { return "file_manager" }

func (t *FileManagerTool) Description() string {
	return "Manage files in the agent workspace. Args: operation (read|write|list|delete), path, content (for write)."
}

func (t *FileManagerTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	op, _ := args["operation"].(string)
	path, _ := args["path"].(string)
	if op == "" {
		return "", fmt.Errorf("operation is required")
	}
	if path == "" && op != "list" {
		return "", fmt.Errorf("path is required")
	}

	resolved, err := t.resolve(path)
	if err != nil {
		return "", err
	}

	switch op {
	case "read":
		data, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	case "write":
		content, _ := args["content"].(string)
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return "", fmt.Errorf("create parent dir: %w", err)
		}
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	case "list":
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", path, err)
		}
		var sb strings.Builder
		for _, e := range entries {
			if e.IsDir() {
				sb.WriteString(e.Name() + "/\n")
			} else {
				sb.WriteString(e.Name() + "\n")
			}
		}
		if sb.Len() == 0 {
			return "(empty directory)", nil
		}
		return sb.String(), nil
	case "delete":
		if err := os.Remove(resolved); err != nil {
			return "", fmt.Errorf("delete %s: %w", path, err)
		}
		return fmt.Sprintf("deleted %s", path), nil
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
}

// resolve anchors a path under the workspace and rejects escapes, resolving
// symlinks so a link pointing outside the workspace cannot slip through.
func (t *FileManagerTool) resolve(path string) (string, error) {
	ws, err := filepath.Abs(t.workspace)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(ws); err == nil {
		ws = real
	}

	candidate := filepath.Clean(filepath.Join(ws, path))
	real, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("access denied: cannot resolve path")
		}
		// New file: canonicalize the nearest existing ancestor instead.
		parentReal, perr := filepath.EvalSymlinks(filepath.Dir(candidate))
		if perr != nil {
			if !os.IsNotExist(perr) {
				return "", fmt.Errorf("access denied: cannot resolve path")
			}
			parentReal = filepath.Dir(candidate)
		}
		real = filepath.Join(parentReal, filepath.Base(candidate))
	}

	if real != ws && !strings.HasPrefix(real, ws+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied: path outside workspace")
	}
	return real, nil
}
