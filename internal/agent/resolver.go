package agent

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
	"github.com/nextlevelbuilder/httpbridge/internal/providers"
)

// ProviderFactory builds a chat provider for a resolved agent.
type ProviderFactory func(cfg *config.Config, spec config.AgentDefaults) providers.Provider

// DefaultProviderFactory builds an OpenAI-compatible provider from
// providers.openai.
func DefaultProviderFactory(cfg *config.Config, spec config.AgentDefaults) providers.Provider {
	p := cfg.Providers.OpenAI
	return providers.NewOpenAIProvider("openai", p.APIKey, p.APIBase, spec.Model)
}

type agentEntry struct {
	agent      Agent
	configHash string
}

// Router resolves agent ids to agents, caching them per config snapshot.
type Router struct {
	mu        sync.Mutex
	agents    map[string]*agentEntry
	providers ProviderFactory
}

func NewRouter(factory ProviderFactory) *Router {
	if factory == nil {
		factory = DefaultProviderFactory
	}
	return &Router{agents: make(map[string]*agentEntry), providers: factory}
}

// Resolve returns the agent for agentID under cfg. A cached agent is reused
// while the config hash is unchanged, so provider agents keep their history.
func (r *Router) Resolve(cfg *config.Config, agentID string) (Agent, error) {
	id := config.NormalizeAgentID(agentID)
	hash := cfg.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.agents[id]; ok && e.configHash == hash {
		return e.agent, nil
	}

	spec := cfg.ResolveAgent(id)
	var ag Agent
	switch strings.ToLower(strings.TrimSpace(spec.Provider)) {
	case "openai":
		ag = NewLoop(LoopConfig{
			ID:           id,
			Provider:     r.providers(cfg, spec),
			Model:        spec.Model,
			SystemPrompt: spec.SystemPrompt,
			MaxTokens:    spec.MaxTokens,
			Temperature:  spec.Temperature,
		})
	default:
		ag = NewEcho(id)
	}
	r.agents[id] = &agentEntry{agent: ag, configHash: hash}
	slog.Info("resolved agent", "agent", id, "provider", spec.Provider, "model", spec.Model)
	return ag, nil
}

// InvalidateAgent removes an agent from the cache.
func (r *Router) InvalidateAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, config.NormalizeAgentID(agentID))
	slog.Debug("invalidated agent cache", "agent", agentID)
}

// InvalidateAll clears the cache, e.g. after a config reload.
func (r *Router) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*agentEntry)
	slog.Debug("invalidated all agent caches")
}
