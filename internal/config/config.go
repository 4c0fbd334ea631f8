package config

import "time"

// Config is the root configuration for Overseer.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Providers ProvidersConfig `json:"providers"`
	Queue     QueueConfig     `json:"queue"`
	Events    EventsConfig    `json:"events"`
	Usage     UsageConfig     `json:"usage"`
	Workspace WorkspaceConfig `json:"workspace"`
	Memory    MemoryConfig    `json:"memory"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProvidersConfig holds provider bindings and routing priorities.
type ProvidersConfig struct {
	Default  string                    `json:"default"`
	Registry map[string]ProviderConfig `json:"registry"`

	// Models maps a concrete model id to the provider that serves it.
	// Provider default models are added to this map automatically.
	Models map[string]string `json:"models,omitempty"`

	// ChatPriority and AgentPriority are ordered model-id candidate lists
	// used when a call does not name a model.
	ChatPriority  []string `json:"chat_priority,omitempty"`
	AgentPriority []string `json:"agent_priority,omitempty"`

	// RoutingFile points to the auto-routing YAML document.
	RoutingFile string `json:"routing_file,omitempty"`
}

// ProviderConfig configures a single AI backend binding.
type ProviderConfig struct {
	Driver        string         `json:"driver"` // "anthropic", "openai", "ollama", "gemini"
	Model         string         `json:"model"`  // default model id
	BaseURL       string         `json:"base_url,omitempty"`
	CredentialRef string         `json:"credential_ref,omitempty"` // env template, dotenv key or secret name
	MaxTokens     int            `json:"max_tokens,omitempty"`
	MaxRetries    int            `json:"max_retries,omitempty"` // consecutive failures before offline
	Timeout       Duration       `json:"timeout,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
}

// QueueConfig holds task queue settings.
type QueueConfig struct {
	Workers int    `json:"workers"`
	Dir     string `json:"dir,omitempty"` // task/thread store root (default: $OVERSEER_PATH/queue)
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level,omitempty"`
}

// UsageConfig holds usage-accounting settings.
type UsageConfig struct {
	DBPath string `json:"db_path,omitempty"` // sqlite ledger (default: $OVERSEER_PATH/usage.db)
}

// WorkspaceConfig holds the managed output workspace settings.
type WorkspaceConfig struct {
	OutputDir string `json:"output_dir,omitempty"` // where delegated agents drop artifacts
}

// MemoryConfig holds episodic memory settings.
type MemoryConfig struct {
	Dir string `json:"dir,omitempty"` // memory store root (default: $OVERSEER_PATH/memory)
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
