package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tbaudier/overseer/internal/config"
)

// Registry owns the provider bindings, the model→provider map, and the two
// priority orders used when a call does not name a model.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*Provider
	defaultName string

	models        map[string]string // model id → provider name
	chatPriority  []string          // ordered model ids for interactive calls
	agentPriority []string          // ordered model ids for autonomous-agent calls
}

// NewRegistry creates a provider registry from config. factory may be nil to
// use the real SDK drivers.
func NewRegistry(cfg config.ProvidersConfig, factory ModelFactory) *Registry {
	r := &Registry{
		providers:     make(map[string]*Provider),
		defaultName:   cfg.Default,
		models:        make(map[string]string),
		chatPriority:  append([]string(nil), cfg.ChatPriority...),
		agentPriority: append([]string(nil), cfg.AgentPriority...),
	}

	for name, provCfg := range cfg.Registry {
		r.providers[name] = NewProvider(name, provCfg, factory)
		if provCfg.Model != "" {
			if _, claimed := r.models[provCfg.Model]; !claimed {
				r.models[provCfg.Model] = name
			}
		}
	}
	for modelID, providerName := range cfg.Models {
		r.models[modelID] = providerName
	}

	return r
}

// Get returns the named provider.
func (r *Registry) Get(name string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", name)
	}
	return p, nil
}

// ForModel resolves the provider serving a concrete model id. Unknown model
// ids fall through to the default provider, which serves ad-hoc ids.
func (r *Registry) ForModel(modelID string) (*Provider, error) {
	r.mu.RLock()
	name, ok := r.models[modelID]
	r.mu.RUnlock()

	if ok {
		return r.Get(name)
	}
	return r.Default()
}

// Default returns the default provider.
func (r *Registry) Default() (*Provider, error) {
	if r.defaultName == "" {
		return nil, fmt.Errorf("no default provider configured")
	}
	return r.Get(r.defaultName)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string { return r.defaultName }

// Priority returns the ordered model-id candidate list for a request class.
// An empty configured order falls back to the default provider's model.
func (r *Registry) Priority(class RequestType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var order []string
	if class == RequestAgent {
		order = r.agentPriority
	} else {
		order = r.chatPriority
	}

	if len(order) > 0 {
		return append([]string(nil), order...)
	}

	if r.defaultName != "" {
		if p, ok := r.providers[r.defaultName]; ok && p.DefaultModel() != "" {
			return []string{p.DefaultModel()}
		}
	}
	return nil
}

// All returns every provider, sorted by name for stable listings.
func (r *Registry) All() []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
