package agent

import (
	"fmt"
	"sort"

	"github.com/ppiankov/signalwatch/internal/model"
)

// Constructor builds an agent from its config
type Constructor func(cfg model.SourceConfig, env Env) (Agent, error)

// Registry maps a source kind to its constructor
type Registry struct {
	kinds map[string]Constructor
}

// NewRegistry creates a registry with the built-in kinds
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Constructor)}
	r.Register("feed", NewFeedAgent)
	r.Register("listing", NewListingAgent)
	return r
}

// Register adds or replaces a kind
func (r *Registry) Register(kind string, c Constructor) {
	r.kinds[kind] = c
}

// Kinds lists registered kinds
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs one agent
func (r *Registry) Build(cfg model.SourceConfig, env Env) (Agent, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = "feed"
	}
	c, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("source %s: unknown kind %q", cfg.Name, cfg.Kind)
	}
	return c(cfg, env)
}

// BuildAll constructs every enabled source in config order
func (r *Registry) BuildAll(cfgs []model.SourceConfig, env Env) ([]Agent, error) {
	seen := make(map[string]bool)
	var agents []Agent
	for _, cfg := range cfgs {
		if cfg.Disabled {
			continue
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate source name: %s", cfg.Name)
		}
		seen[cfg.Name] = true

		a, err := r.Build(cfg, env)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}
