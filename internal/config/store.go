package config

import (
	"fmt"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Store is the effective, merged configuration tree for one workflow run.
// It is read-only after construction: all mutation happens through Merge
// producing a new Store, never in place (spec §5: "Config Store is
// read-only after initialization per workflow").
type Store struct {
	tree schema.Tree
}

// New wraps an already-merged tree as a Store.
func New(tree schema.Tree) *Store {
	return &Store{tree: tree}
}

// Build assembles the effective configuration from the four precedence
// layers: server defaults < system_config overlay < app_config overlay <
// per-task overlay (the last applied later, per task, via
// WithTaskOverlay — not here).
func Build(serverDefaults, systemOverlay, appOverlay schema.Tree) *Store {
	return New(MergeAll(serverDefaults, systemOverlay, appOverlay))
}

// Tree returns the underlying merged tree. Callers must not mutate it.
func (s *Store) Tree() schema.Tree {
	return s.tree
}

// Get performs a dot-path lookup against the effective tree.
func (s *Store) Get(path string) (any, bool) {
	return GetValue(s.tree, path)
}

// WithTaskOverlay returns a new Store with a per-task overlay merged on
// top — the highest-precedence layer in spec §4.1.
func (s *Store) WithTaskOverlay(overlay schema.Tree) *Store {
	if len(overlay) == 0 {
		return s
	}
	return New(Merge(s.tree, overlay))
}

// resolutionOrder is the scalar-parameter fallback chain from spec §4.1:
// per-agent override, then llm_config.default_*, then the provider's
// default_*, then a compiled-in default.
type resolutionOrder struct {
	agentPath    string // llm_config.agents.<kind>.<param>
	globalPath   string // llm_config.default_<param>
	providerPath string // llm_config.providers.<provider>.default_<param>
	compiledIn   any
}

func (s *Store) resolveScalar(order resolutionOrder) (any, bool) {
	if v, ok := s.Get(order.agentPath); ok {
		return v, true
	}
	if v, ok := s.Get(order.globalPath); ok {
		return v, true
	}
	if order.providerPath != "" {
		if v, ok := s.Get(order.providerPath); ok {
			return v, true
		}
	}
	if order.compiledIn != nil {
		return order.compiledIn, true
	}
	return nil, false
}

// AgentParams is the flat, resolved set of scalar LLM parameters an Agent
// Runtime invocation needs.
type AgentParams struct {
	Provider    string
	Model       string
	Temperature float64
	SystemTemplate string
	UserTemplate   string
}

var compiledDefaults = map[string]any{
	"temperature": 0.2,
}

// AgentView resolves the flat view an agent sees for agentKind: its own
// overrides at llm_config.agents.<kind>, overlaid onto the resolved
// provider's defaults at llm_config.providers.<provider>, so the agent
// never has to know about the provider/agent split. Returns config_error
// if a required scalar parameter has no default anywhere in the chain.
func (s *Store) AgentView(agentKind string) (AgentParams, schema.Tree, error) {
	agentPath := fmt.Sprintf("llm_config.agents.%s", agentKind)
	agentTree, _ := s.Get(agentPath)
	agentMap, _ := agentTree.(map[string]any)

	provider, ok := s.resolveScalar(resolutionOrder{
		agentPath:  agentPath + ".provider",
		globalPath: "llm_config.default_provider",
	})
	if !ok {
		return AgentParams{}, nil, schema.NewErrorf(schema.ErrCodeConfig,
			"agent %q: no provider resolvable (no per-agent, default, or compiled-in value)", agentKind)
	}
	providerStr, ok := provider.(string)
	if !ok {
		return AgentParams{}, nil, schema.NewErrorf(schema.ErrCodeConfig,
			"agent %q: provider must be a string, got %T", agentKind, provider)
	}

	providerBasePath := fmt.Sprintf("llm_config.providers.%s", providerStr)
	if providerTree, ok := s.Get(providerBasePath); ok {
		if _, isMap := providerTree.(map[string]any); !isMap {
			return AgentParams{}, nil, schema.NewErrorf(schema.ErrCodeConfig,
				"provider %q config must be a map, got %T", providerStr, providerTree)
		}
	}

	model, ok := s.resolveScalar(resolutionOrder{
		agentPath:    agentPath + ".model",
		globalPath:   "llm_config.default_model",
		providerPath: providerBasePath + ".default_model",
	})
	if !ok {
		return AgentParams{}, nil, schema.NewErrorf(schema.ErrCodeConfig,
			"agent %q: no model resolvable for provider %q", agentKind, providerStr)
	}
	modelStr, _ := model.(string)

	temperature, _ := s.resolveScalar(resolutionOrder{
		agentPath:    agentPath + ".temperature",
		globalPath:   "llm_config.default_temperature",
		providerPath: providerBasePath + ".default_temperature",
		compiledIn:   compiledDefaults["temperature"],
	})
	temp := toFloat(temperature)

	systemTemplate, _ := s.resolveScalar(resolutionOrder{
		agentPath:  agentPath + ".system_prompt",
		globalPath: "llm_config.default_system_prompt",
	})
	userTemplate, _ := s.resolveScalar(resolutionOrder{
		agentPath:  agentPath + ".user_prompt",
		globalPath: "llm_config.default_user_prompt",
	})

	params := AgentParams{
		Provider:       providerStr,
		Model:          modelStr,
		Temperature:    temp,
		SystemTemplate: asString(systemTemplate),
		UserTemplate:   asString(userTemplate),
	}
	return params, agentMap, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
