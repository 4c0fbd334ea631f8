package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates, strips
// comments and trailing commas, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before standardizing, since
	// templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("standardize config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18520
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.Dir == "" {
		cfg.Queue.Dir = filepath.Join(OverseerPath(), "queue")
	}
	if cfg.Usage.DBPath == "" {
		cfg.Usage.DBPath = filepath.Join(OverseerPath(), "usage.db")
	}
	if cfg.Workspace.OutputDir == "" {
		cfg.Workspace.OutputDir = filepath.Join(OverseerPath(), "workspace")
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = filepath.Join(OverseerPath(), "memory")
	}
	if cfg.Providers.RoutingFile == "" {
		cfg.Providers.RoutingFile = RoutingPath()
	}

	// Default MaxRetries for providers and fold default models into the model map.
	if cfg.Providers.Models == nil {
		cfg.Providers.Models = make(map[string]string)
	}
	for name, p := range cfg.Providers.Registry {
		if p.MaxRetries <= 0 {
			p.MaxRetries = 3
			cfg.Providers.Registry[name] = p
		}
		if p.Model != "" {
			if _, claimed := cfg.Providers.Models[p.Model]; !claimed {
				cfg.Providers.Models[p.Model] = name
			}
		}
	}
}
