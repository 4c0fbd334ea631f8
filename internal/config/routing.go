package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingConfig is the auto-routing document: which models the "auto" mode may
// choose among for each request class, and which model acts as the picker.
type RoutingConfig struct {
	Picker string           `yaml:"picker"` // model id that chooses among candidates
	Chat   []RouteCandidate `yaml:"chat"`
	Agent  []RouteCandidate `yaml:"agent"`
}

// RouteCandidate is one model eligible for auto-routing.
type RouteCandidate struct {
	Model       string `yaml:"model"`
	Description string `yaml:"description,omitempty"` // human description shown to the picker
	Disabled    bool   `yaml:"disabled,omitempty"`
}

// LoadRouting reads the routing YAML document. A missing file yields an empty
// config, which disables auto-routing rather than failing startup.
func LoadRouting(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RoutingConfig{}, nil
		}
		return nil, fmt.Errorf("read routing config: %w", err)
	}

	var rc RoutingConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("unmarshal routing config: %w", err)
	}
	return &rc, nil
}

// SaveRouting writes the routing document back to disk.
func SaveRouting(path string, rc *RoutingConfig) error {
	data, err := yaml.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal routing config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write routing config: %w", err)
	}
	return nil
}

// Candidates returns the candidate list for a request class ("chat" or "agent").
func (rc *RoutingConfig) Candidates(class string) []RouteCandidate {
	if class == "agent" {
		return rc.Agent
	}
	return rc.Chat
}

// EnabledModels returns the ordered model ids enabled for a request class.
func (rc *RoutingConfig) EnabledModels(class string) []string {
	var ids []string
	for _, c := range rc.Candidates(class) {
		if c.Disabled || c.Model == "" {
			continue
		}
		ids = append(ids, c.Model)
	}
	return ids
}

// Description returns the human description for a model id, if any.
func (rc *RoutingConfig) Description(model string) string {
	for _, c := range append(append([]RouteCandidate{}, rc.Chat...), rc.Agent...) {
		if c.Model == model {
			return c.Description
		}
	}
	return ""
}
