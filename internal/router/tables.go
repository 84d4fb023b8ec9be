package router

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoutingTable is the data that drives model classification. The mapping
// from canonical model ids to providers is configuration, not code: the
// built-in table below can be replaced or extended from a YAML file.
type RoutingTable struct {
	// Rules are evaluated in order; the first match wins. A model id that
	// matches no rule routes to DefaultProvider.
	Rules []RoutingRule `yaml:"rules"`

	// DefaultProvider catches everything no rule claims.
	DefaultProvider string `yaml:"default_provider"`

	// Fallback maps a canonical model id to the id to request from the
	// default provider when the primary provider fails.
	Fallback map[string]string `yaml:"fallback"`

	// Aliases maps short names to canonical model ids, case-insensitive.
	Aliases map[string]string `yaml:"aliases"`
}

// RoutingRule claims model ids for one provider by exact id or id prefix.
type RoutingRule struct {
	Provider string   `yaml:"provider"`
	IDs      []string `yaml:"ids,omitempty"`
	Prefixes []string `yaml:"prefixes,omitempty"`
}

// Matches reports whether the rule claims the given canonical model id.
func (r RoutingRule) Matches(modelID string) bool {
	for _, id := range r.IDs {
		if modelID == id {
			return true
		}
	}
	for _, p := range r.Prefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}

// Provider names used by the built-in table and the adapter registry.
const (
	ProviderOpenRouter = "openrouter"
	ProviderCerebras   = "cerebras"
	ProviderAnthropic  = "anthropic"
	ProviderFireworks  = "fireworks"
	ProviderMoonshot   = "moonshot"
	ProviderXAI        = "xai"
	ProviderGemini     = "gemini"
)

// DefaultTable returns the built-in routing table.
func DefaultTable() *RoutingTable {
	return &RoutingTable{
		Rules: []RoutingRule{
			{
				Provider: ProviderCerebras,
				IDs: []string{
					"zai-glm-4.6",
					"zai-glm-4.7",
					"llama3.1-8b",
					"llama-3.3-70b",
					"qwen-3-32b",
					"gpt-oss-120b",
				},
			},
			{
				Provider: ProviderAnthropic,
				Prefixes: []string{"anthropic/", "claude-"},
			},
			{
				Provider: ProviderFireworks,
				IDs:      []string{"fireworks/kimi-k2.5", "fireworks/glm-5"},
				Prefixes: []string{"fireworks/"},
			},
			{
				Provider: ProviderMoonshot,
				IDs:      []string{"moonshot/kimi-k2.5", "kimi-k2.5"},
				Prefixes: []string{"moonshot/"},
			},
			{
				Provider: ProviderXAI,
				IDs:      []string{"x-ai/grok-4", "x-ai/grok-4-fast", "x-ai/grok-4.1-fast"},
				Prefixes: []string{"x-ai/"},
			},
			{
				Provider: ProviderGemini,
				IDs: []string{
					"google/gemini-3-flash",
					"google/gemini-3-flash-preview",
					"google/gemini-3-pro",
					"google/gemini-3-pro-preview",
					"google/gemini-2.0-flash",
				},
			},
		},
		DefaultProvider: ProviderOpenRouter,
		Fallback: map[string]string{
			"anthropic/claude-opus-4.6": "anthropic/claude-opus-4-6",
			"fireworks/kimi-k2.5":       "moonshotai/kimi-k2.5",
			"fireworks/glm-5":           "z-ai/glm-5",
			"zai-glm-4.7":               "z-ai/glm-4.7",
			"z-ai/glm-5":                "z-ai/glm-5",
			"google/gemini-3-flash":     "google/gemini-2.0-flash-001",
			"google/gemini-3-pro":       "google/gemini-2.5-pro-preview-06-05",
			"openai/gpt-5.2":            "openai/gpt-5.2",
			"x-ai/grok-4":               "x-ai/grok-4",
			"moonshot/kimi-k2.5":        "moonshotai/kimi-k2.5",
			"deepseek/deepseek-chat":    "deepseek/deepseek-chat",
		},
		Aliases: map[string]string{
			"gpt":      "openai/gpt-5.2",
			"opus":     "anthropic/claude-opus-4.6",
			"kimi":     "fireworks/kimi-k2.5",
			"glm":      "fireworks/glm-5",
			"gemini":   "google/gemini-3-pro-preview",
			"pro":      "google/gemini-3-pro-preview",
			"deepseek": "deepseek/deepseek-v3.2",
			"grok":     "x-ai/grok-4.1-fast",
			"sonnet":   "anthropic/claude-sonnet-4.5",
			"flash":    "google/gemini-3-flash-preview",
		},
	}
}

// LoadTable reads a routing table from a YAML file. Sections absent from the
// file keep the built-in defaults, so an override file can replace only the
// fallback map or only the aliases.
func LoadTable(path string) (*RoutingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing table: %w", err)
	}
	var override RoutingTable
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse routing table %s: %w", path, err)
	}

	t := DefaultTable()
	if len(override.Rules) > 0 {
		t.Rules = override.Rules
	}
	if override.DefaultProvider != "" {
		t.DefaultProvider = override.DefaultProvider
	}
	if len(override.Fallback) > 0 {
		t.Fallback = override.Fallback
	}
	if len(override.Aliases) > 0 {
		t.Aliases = override.Aliases
	}
	return t, nil
}

// Classify returns the provider name for a canonical model id.
func (t *RoutingTable) Classify(modelID string) string {
	for _, rule := range t.Rules {
		if rule.Matches(modelID) {
			return rule.Provider
		}
	}
	return t.DefaultProvider
}

// ResolveAlias maps a short model name to its canonical id. Unknown names
// pass through unchanged.
func (t *RoutingTable) ResolveAlias(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if full, ok := t.Aliases[key]; ok {
		return full
	}
	return strings.TrimSpace(name)
}

// FallbackID returns the default-provider model id to retry with when the
// primary provider fails, or "" when the model has no fallback.
func (t *RoutingTable) FallbackID(modelID string) string {
	return t.Fallback[modelID]
}
