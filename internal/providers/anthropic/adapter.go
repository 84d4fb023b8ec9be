package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/councilhub/internal/providers"
	"github.com/jordanhubbard/councilhub/internal/router"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"

	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
	requestTimeout   = 120 * time.Second

	// OAuth tokens from a Max plan are only accepted when the request looks
	// like Claude Code: this system prefix plus the claude-code beta flags.
	claudeCodeSystemPrefix = "You are Claude Code, Anthropic's official CLI for Claude."

	claudeCodeBetaFlags = "oauth-2025-04-20," +
		"claude-code-20250219," +
		"interleaved-thinking-2025-05-14," +
		"fine-grained-tool-streaming-2025-05-14"
)

// modelMap converts canonical model ids to Anthropic API model ids.
var modelMap = map[string]string{
	"anthropic/claude-opus-4.5":   "claude-opus-4-20250514",
	"anthropic/claude-sonnet-4.5": "claude-sonnet-4-20250514",
	"anthropic/claude-3.5-sonnet": "claude-3-5-sonnet-20241022",
	"anthropic/claude-3.5-haiku":  "claude-3-5-haiku-20241022",
	"claude-opus-4.5":             "claude-opus-4-20250514",
	"claude-sonnet-4.5":           "claude-sonnet-4-20250514",
}

func resolveModelID(model string) string {
	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	// Unmapped canonical ids pass through without the routing prefix.
	return strings.TrimPrefix(model, "anthropic/")
}

// Adapter implements router.Sender against Anthropic's native messages API.
// It prefers OAuth credentials (Max plan, via opencode's auth file) and falls
// back to the API key when the OAuth call fails.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	tokens  *tokenSource
	logger  *slog.Logger
}

// New creates an Anthropic adapter. authPaths and tokenURL default to the
// opencode locations when empty.
func New(apiKey, baseURL string, authPaths []string, tokenURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if authPaths == nil {
		authPaths = DefaultAuthPaths()
	}
	return &Adapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		tokens:  newTokenSource(authPaths, tokenURL),
		logger:  slog.Default().With(slog.String("provider", "anthropic")),
	}
}

func (a *Adapter) ID() string { return router.ProviderAnthropic }

func (a *Adapter) Send(ctx context.Context, model string, req router.Request) (*router.Response, error) {
	// The messages API call carries a single user turn: the last message is
	// the prompt, the first system message (if any) the system block.
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	system := ""
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = msg.Content
			break
		}
	}

	token, err := a.tokens.Token(ctx)
	if err != nil {
		a.logger.Warn("oauth token unavailable", slog.String("error", err.Error()))
		token = ""
	}
	if token != "" {
		resp, err := a.call(ctx, model, prompt, system, req.MaxTokens, token)
		if err == nil {
			return resp, nil
		}
		var se *providers.StatusError
		if !errors.As(err, &se) {
			return nil, err
		}
		a.logger.Warn("oauth call failed, falling back to api key",
			slog.Int("status", se.StatusCode))
	}

	if a.apiKey == "" {
		if token != "" {
			return nil, fmt.Errorf("anthropic oauth failed and no api key configured")
		}
		return nil, fmt.Errorf("no anthropic credentials configured")
	}
	return a.call(ctx, model, prompt, system, req.MaxTokens, "")
}

// call issues one messages API request. A non-empty token selects OAuth auth
// with the Claude Code request shape; otherwise the API key is used.
func (a *Adapter) call(ctx context.Context, model, prompt, system string, maxTokens int, token string) (*router.Response, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := map[string]any{
		"model":      resolveModelID(model),
		"max_tokens": maxTokens,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
	headers := map[string]string{"anthropic-version": apiVersion}

	provider := a.ID()
	if token != "" {
		provider = "anthropic-oauth"
		headers["authorization"] = "Bearer " + token
		headers["anthropic-beta"] = claudeCodeBetaFlags
		finalSystem := claudeCodeSystemPrefix
		if system != "" {
			finalSystem = claudeCodeSystemPrefix + "\n\n" + system
		}
		payload["system"] = finalSystem
	} else {
		headers["x-api-key"] = a.apiKey
		if system != "" {
			payload["system"] = system
		}
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/v1/messages", payload, headers)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	text := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &router.Response{
		Model:    model,
		Provider: provider,
		Content:  text,
		Usage: router.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}

func (a *Adapter) ClassifyError(err error) *router.ClassifiedError {
	return providers.ClassifyStatusError(err)
}
