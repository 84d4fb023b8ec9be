// Package secrets loads API keys from environment variables (container
// deployments) or ~/.bash_secrets (local development).
//
// Resolution order for each key:
//  1. Environment variable (set by the orchestrator's secret manager)
//  2. ~/.bash_secrets, sourced through bash
//
// Missing keys disable the dependent provider; they never fail startup.
package secrets

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// keyNames lists every API key the council uses.
var keyNames = []string{
	"OPENROUTER_API_KEY",
	"CEREBRAS_API_KEY",
	"ANTHROPIC_API_KEY",
	"MOONSHOT_API_KEY",
	"GROK_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_AI_API_KEY",
	"FIREWORKS_API_KEY",
	"COUNCIL_API_KEY",
}

// Secrets is an immutable snapshot of the resolved API keys.
type Secrets struct {
	values map[string]string
}

// Get returns a secret by key name, or "".
func (s *Secrets) Get(key string) string {
	return s.values[key]
}

// GeminiKey returns GEMINI_API_KEY, falling back to GOOGLE_AI_API_KEY.
func (s *Secrets) GeminiKey() string {
	if v := s.values["GEMINI_API_KEY"]; v != "" {
		return v
	}
	return s.values["GOOGLE_AI_API_KEY"]
}

// Count returns how many keys were resolved.
func (s *Secrets) Count() int { return len(s.values) }

// Load resolves all known keys. When fewer than three keys come from the
// environment it assumes local development and fills gaps from
// ~/.bash_secrets.
func Load(logger *slog.Logger) *Secrets {
	if logger == nil {
		logger = slog.Default()
	}

	values := make(map[string]string)
	for _, key := range keyNames {
		if v := os.Getenv(key); v != "" {
			values[key] = v
		}
	}
	envCount := len(values)

	if envCount >= 3 {
		logger.Info("loaded api keys from environment", slog.Int("count", envCount))
		return &Secrets{values: values}
	}

	fromFile := loadBashSecrets(logger)
	for key, v := range fromFile {
		if _, ok := values[key]; !ok {
			values[key] = v
		}
	}

	switch {
	case len(fromFile) > 0:
		logger.Info("loaded api keys",
			slog.Int("from_env", envCount),
			slog.Int("from_bash_secrets", len(values)-envCount))
	case envCount > 0:
		logger.Info("loaded api keys from environment", slog.Int("count", envCount))
	default:
		logger.Warn("no api keys found in env or ~/.bash_secrets")
	}

	return &Secrets{values: values}
}

// loadBashSecrets sources ~/.bash_secrets through bash and collects the
// exported key names. The file is a shell script, so it must be evaluated by
// a shell rather than parsed.
func loadBashSecrets(logger *slog.Logger) map[string]string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".bash_secrets")
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	out, err := exec.Command("bash", "-c", "source "+path+" && env").Output()
	if err != nil {
		logger.Warn("failed to source ~/.bash_secrets", slog.String("error", err.Error()))
		return nil
	}

	known := make(map[string]bool, len(keyNames))
	for _, key := range keyNames {
		known[key] = true
	}

	values := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if ok && known[key] {
			values[key] = value
		}
	}
	return values
}
