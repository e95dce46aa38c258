// Package agentruntime implements the Agent Runtime (C4): the
// per-agent-kind registry, prompt formatting, LLM invocation, and
// structured-reply parsing that together implement
// process(context) → AgentResult per spec §4.4. Grounded on the
// teacher's internal/actions/registry.go registry pattern (spec §9
// mandates a compile-time registry, not dynamic class lookup).
package agentruntime

import (
	"sort"
	"sync"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Agent is one agent_kind's behavior: shaping the LLM reply into
// AgentResult.Data. The Runtime handles template formatting, LLM
// invocation, and lineage emission uniformly; Agent only interprets the
// LLM's raw text for its kind (spec §4.4 step 5).
type Agent interface {
	Kind() string
	// SystemTemplate and UserTemplate may contain ${{...}} placeholders
	// resolved against the invocation context before being sent to the
	// LLM Adapter (spec §4.4 step 3).
	SystemTemplate() string
	UserTemplate() string
	// ParseReply interprets the LLM's completed text into AgentResult.Data
	// (or returns a parse_error TaxonomyError, preserving raw_output).
	ParseReply(raw string) (map[string]any, error)
}

// Registry is a thread-safe compile-time agent_kind → Agent lookup.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]Agent{}}
}

// Register adds agent under its own Kind(). Duplicate registration is a
// programming error (mirrors the teacher's action registry conflict check).
func (r *Registry) Register(agent Agent) error {
	if agent == nil || agent.Kind() == "" {
		return schema.NewError(schema.ErrCodeConfig, "agent is nil or has an empty kind")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agent.Kind()]; exists {
		return schema.NewErrorf(schema.ErrCodeConfig, "agent kind %q already registered", agent.Kind())
	}
	r.agents[agent.Kind()] = agent
	return nil
}

// Get retrieves the Agent for kind, or a config_error if unregistered
// (spec §4.6 preflight: "agent kinds referenced by every team's tasks
// are registered").
func (r *Registry) Get(kind string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "agent kind %q is not registered", kind)
	}
	return agent, nil
}

// Kinds lists every registered agent_kind, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for k := range r.agents {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
