package tools

import (
	"time"

	"github.com/nextlevelbuilder/swarmd/internal/config"
)

// Builtin returns a registry populated with the standard tool set.
func Builtin(cfg config.ToolsConfig, workspace string) *Registry {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	r := NewRegistry()
	r.Register(NewFileManagerTool(workspace))
	r.Register(NewCodeExecutorTool(workspace, timeout, cfg.MaxOutputBytes))
	r.Register(NewWebScraperTool(timeout, cfg.MaxFetchBytes))
	return r
}
