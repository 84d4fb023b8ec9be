package router

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyByID(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		model string
		want  string
	}{
		{"zai-glm-4.6", ProviderCerebras},
		{"llama-3.3-70b", ProviderCerebras},
		{"fireworks/kimi-k2.5", ProviderFireworks},
		{"kimi-k2.5", ProviderMoonshot},
		{"x-ai/grok-4.1-fast", ProviderXAI},
		{"google/gemini-3-pro-preview", ProviderGemini},
	}
	for _, tc := range tests {
		if got := table.Classify(tc.model); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.model, got, tc.want)
		}
	}
}

func TestClassifyByPrefix(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		model string
		want  string
	}{
		{"anthropic/claude-opus-4.6", ProviderAnthropic},
		{"claude-sonnet-4.5", ProviderAnthropic},
		{"fireworks/anything-new", ProviderFireworks},
		{"moonshot/other-model", ProviderMoonshot},
		{"x-ai/grok-99", ProviderXAI},
	}
	for _, tc := range tests {
		if got := table.Classify(tc.model); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.model, got, tc.want)
		}
	}
}

func TestClassifyDefault(t *testing.T) {
	table := DefaultTable()
	for _, model := range []string{"openai/gpt-5.2", "deepseek/deepseek-v3.2", "completely-unknown"} {
		if got := table.Classify(model); got != ProviderOpenRouter {
			t.Errorf("Classify(%q) = %s, want default %s", model, got, ProviderOpenRouter)
		}
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	// "fireworks/kimi-k2.5" appears both as a fireworks ID and matches the
	// fireworks/ prefix; the explicit moonshot ID "kimi-k2.5" must not claim it.
	table := DefaultTable()
	if got := table.Classify("fireworks/kimi-k2.5"); got != ProviderFireworks {
		t.Errorf("Classify(fireworks/kimi-k2.5) = %s, want fireworks", got)
	}
}

func TestResolveAlias(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		name string
		want string
	}{
		{"opus", "anthropic/claude-opus-4.6"},
		{"OPUS", "anthropic/claude-opus-4.6"},
		{"  gpt  ", "openai/gpt-5.2"},
		{"kimi", "fireworks/kimi-k2.5"},
		{"unknown-model", "unknown-model"},
		{"  passthrough  ", "passthrough"},
	}
	for _, tc := range tests {
		if got := table.ResolveAlias(tc.name); got != tc.want {
			t.Errorf("ResolveAlias(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFallbackID(t *testing.T) {
	table := DefaultTable()
	if got := table.FallbackID("fireworks/glm-5"); got != "z-ai/glm-5" {
		t.Errorf("FallbackID(fireworks/glm-5) = %q", got)
	}
	if got := table.FallbackID("no-such-model"); got != "" {
		t.Errorf("FallbackID(no-such-model) = %q, want empty", got)
	}
}

func TestLoadTableOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	yaml := `
aliases:
  best: my-provider/best-model
fallback:
  my-provider/best-model: openrouter-equivalent
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}

	// Overridden sections replace, untouched sections keep defaults.
	if got := table.ResolveAlias("best"); got != "my-provider/best-model" {
		t.Errorf("ResolveAlias(best) = %q", got)
	}
	if got := table.ResolveAlias("opus"); got != "opus" {
		t.Errorf("aliases should be fully replaced, ResolveAlias(opus) = %q", got)
	}
	if got := table.FallbackID("my-provider/best-model"); got != "openrouter-equivalent" {
		t.Errorf("FallbackID = %q", got)
	}
	if got := table.Classify("claude-opus-4.6"); got != ProviderAnthropic {
		t.Errorf("default rules should survive a partial override, got %s", got)
	}
	if table.DefaultProvider != ProviderOpenRouter {
		t.Errorf("DefaultProvider = %s, want openrouter", table.DefaultProvider)
	}
}

func TestLoadTableFullReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	yaml := `
rules:
  - provider: custom
    prefixes: ["custom/"]
default_provider: custom
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if got := table.Classify("custom/model"); got != "custom" {
		t.Errorf("Classify(custom/model) = %s", got)
	}
	if got := table.Classify("anthropic/claude-opus-4.6"); got != "custom" {
		t.Errorf("replaced rules should route everything else to custom default, got %s", got)
	}
}

func TestLoadTableMissingFile(t *testing.T) {
	if _, err := LoadTable("/nonexistent/routing.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadTableBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	if err := os.WriteFile(path, []byte("rules: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
