// Package config loads the swarmd YAML configuration and applies environment
// overrides. Env vars take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the swarmd server.
type Config struct {
	Database  DatabaseConfig         `yaml:"database"`
	Gateway   GatewayConfig          `yaml:"gateway"`
	Scheduler SchedulerConfig        `yaml:"scheduler"`
	Agents    AgentsConfig           `yaml:"agents"`
	Tools     ToolsConfig            `yaml:"tools"`
	Models    map[string]ModelConfig `yaml:"llm_models"`
	Telemetry TelemetryConfig        `yaml:"telemetry"`
}

// DatabaseConfig selects the storage backend. Driver "sqlite" is the
// zero-config default; "postgres" is for production deployments.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// GatewayConfig configures the HTTP listener.
type GatewayConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Token          string   `yaml:"token"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"` // per client; 0 = disabled
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SchedulerConfig tunes the task scheduler's periodic cycle.
type SchedulerConfig struct {
	CycleSeconds    int    `yaml:"cycle_seconds"`
	SweepCron       string `yaml:"sweep_cron"` // optional cron gate for the maintenance cycle
	AutoAssignLimit int    `yaml:"auto_assign_limit"`
	WorkloadCap     int    `yaml:"workload_cap"`
}

// Cycle returns the loop interval.
func (s SchedulerConfig) Cycle() time.Duration {
	return time.Duration(s.CycleSeconds) * time.Second
}

// AgentsConfig holds per-agent runtime defaults.
type AgentsConfig struct {
	Workspace        string `yaml:"workspace"`
	MaxIterations    int    `yaml:"max_iterations"`
	ThinkTimeoutSecs int    `yaml:"think_timeout_seconds"` // 0 = no deadline
	StopDrainSecs    int    `yaml:"stop_drain_seconds"`
}

// ToolsConfig configures builtin tool execution.
type ToolsConfig struct {
	TimeoutSeconds int   `yaml:"timeout_seconds"`
	MaxOutputBytes int   `yaml:"max_output_bytes"`
	MaxFetchBytes  int64 `yaml:"max_fetch_bytes"`
}

// Model providers.
const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderLlamaCpp         = "llamacpp"
)

// ModelConfig describes one language-model backend.
// Provider "openai-compatible" targets any server speaking the OpenAI
// completions API (vLLM, TGI, llama.cpp in OpenAI mode); "llamacpp" targets
// the native llama.cpp /completion endpoint.
type ModelConfig struct {
	Provider  string         `yaml:"provider"`
	BaseURL   string         `yaml:"base_url"`
	ModelPath string         `yaml:"model_path"` // model name/path passed to the backend
	Config    ModelTunables  `yaml:"config"`
	Extra     map[string]any `yaml:"extra,omitempty"`
}

// ModelTunables are generation defaults for a model.
type ModelTunables struct {
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"` // 0 = unlimited
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "~/.swarmd/swarmd.db",
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18890,
			RateLimitRPS: 0,
		},
		Scheduler: SchedulerConfig{
			CycleSeconds:    60,
			AutoAssignLimit: 5,
			WorkloadCap:     3,
		},
		Agents: AgentsConfig{
			Workspace:     "~/.swarmd/workspace",
			MaxIterations: 5,
			StopDrainSecs: 10,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
			MaxOutputBytes: 64 * 1024,
			MaxFetchBytes:  2 << 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "swarmd",
		},
	}
}

// Load reads config from a YAML file, then overlays env vars. A missing file
// yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Secrets (DSN, token)
// are env-only in typical deployments and never written back to the file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("SWARMD_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("SWARMD_DB_DRIVER", &c.Database.Driver)
	envStr("SWARMD_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("SWARMD_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("SWARMD_GATEWAY_HOST", &c.Gateway.Host)
	envStr("SWARMD_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	if v := os.Getenv("SWARMD_GATEWAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = p
		}
	}
	if c.Database.PostgresDSN != "" && os.Getenv("SWARMD_DB_DRIVER") == "" {
		c.Database.Driver = "postgres"
	}
}

// ExpandHome resolves a leading ~ in a path.
func ExpandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
